package chat

// DefaultRules returns the built-in keyword table and copy. Each call returns
// a fresh value that the caller may modify.
func DefaultRules() Rules {
	return Rules{
		Agents: map[Agent]Persona{
			AgentTemple: {
				Welcome:      "🛕 Namaste! I'm your Temple Guide AI. I can help you with temple information, timings, dress codes, history, and spiritual guidance. What would you like to know?",
				SystemPrompt: "You are a knowledgeable Temple Guide AI assistant. You specialize in Indian temples, their history, significance, rituals, timings, dress codes, and spiritual guidance. Provide helpful, accurate, and respectful information about Hindu, Buddhist, Jain, and Sikh temples. Always be culturally sensitive and promote spiritual understanding.",
				Groups: []KeywordGroup{
					{
						Keywords: []string{"timing", "open", "close"},
						Response: "🕐 Temple timings vary by location:\n\n• Most temples: 5:00 AM - 9:00 PM\n• Major temples: 4:00 AM - 11:00 PM\n• Some temples close for lunch: 12:00 PM - 4:00 PM\n\nWould you like specific timings for a particular temple?",
					},
					{
						Keywords: []string{"dress code", "clothing", "wear"},
						Response: "👕 Temple dress code guidelines:\n\n• Traditional Indian attire preferred\n• Avoid shorts, mini skirts, sleeveless tops\n• Remove leather items (shoes, belts, bags)\n• Cover head in some temples\n• Modest, clean clothing\n\nSome temples provide cloth for covering if needed.",
					},
					{
						Keywords: []string{"prasad", "offering", "donate"},
						Response: "🙏 About temple offerings:\n\n• Prasadam: Blessed food offered to devotees\n• Common offerings: Coconut, flowers, fruits, sweets\n• Monetary donations accepted\n• No compulsion to offer anything\n• Respect temple customs\n\nOfferings are a way to express devotion, not mandatory.",
					},
					{
						Keywords: []string{"history", "built", "ancient"},
						Response: "📜 Indian temples have rich histories:\n\n• Many are over 1000+ years old\n• Built by various dynasties (Chola, Pallava, Vijayanagara)\n• Showcase incredible architecture\n• Survived invasions and natural disasters\n• Continuously renovated and maintained\n\nWhich temple's history interests you?",
					},
				},
			},
			AgentSenior: {
				Welcome:      "👵 Hello! I'm your Senior Travel Assistant. I specialize in making temple visits comfortable and accessible for seniors. I can help with wheelchair accessibility, medical facilities, and senior-friendly accommodations.",
				SystemPrompt: "You are a Senior Travel Assistant AI specialized in making temple visits comfortable and accessible for elderly visitors. Focus on wheelchair accessibility, medical facilities, comfortable accommodations, easy transportation, and safety considerations. Be empathetic and practical in your advice.",
				Groups: []KeywordGroup{
					{
						Keywords: []string{"wheelchair", "accessibility", "ramp"},
						Response: "♿ Accessibility features for seniors:\n\n• Wheelchair ramps available in modern temples\n• Priority darshan for seniors (60+)\n• Dedicated seating areas\n• Golf cart services in large complexes\n• Elevator access where available\n• Nearby medical facilities\n\nI can filter temples with full accessibility features.",
					},
					{
						Keywords: []string{"medical", "hospital", "doctor"},
						Response: "🏥 Medical facilities near temples:\n\n• Most major temples have nearby hospitals\n• First aid centers on premises\n• Emergency contact numbers available\n• Pharmacy services nearby\n• Ambulance services accessible\n• Medical volunteers during festivals\n\nAlways carry your medications and medical history.",
					},
					{
						Keywords: []string{"comfort", "rest", "tired"},
						Response: "😌 Comfort features for seniors:\n\n• Rest areas with seating\n• Shade and cooling facilities\n• Clean restroom facilities\n• Drinking water stations\n• Guided tour options\n• Shorter walking routes\n• Comfortable transportation\n\nTake breaks as needed and stay hydrated!",
					},
				},
			},
			AgentPlanner: {
				Welcome:      "🗺️ Welcome! I'm your Trip Planner AI. I can create customized itineraries, suggest the best routes, recommend accommodations, and help plan your perfect spiritual journey. Where would you like to start?",
				SystemPrompt: "You are a Trip Planner AI expert in organizing spiritual journeys and temple visits across India. Provide detailed itineraries, transportation options, accommodation suggestions, cost estimates, and timing recommendations. Consider seasonal factors, festivals, and regional variations.",
				Groups: []KeywordGroup{
					{
						Keywords: []string{"itinerary", "plan", "schedule"},
						Response: "📅 Creating your temple itinerary:\n\n• Best time: Early morning or evening\n• Duration: 2-4 hours per major temple\n• Group size considerations\n• Transport arrangements\n• Accommodation booking\n• Local guide services\n• Festival calendar check\n\nTell me your preferred dates and locations!",
					},
					{
						Keywords: []string{"cost", "budget", "price"},
						Response: "💰 Temple visit budget planning:\n\n• Entry fees: ₹0-₹50 (most are free)\n• Transport: ₹500-₹2000/day\n• Accommodation: ₹1000-₹5000/night\n• Food: ₹300-₹800/day\n• Guide services: ₹500-₹1500/day\n• Offerings: Optional\n\nTotal: ₹2000-₹10000/day depending on comfort level.",
					},
					{
						Keywords: []string{"transport", "travel", "reach"},
						Response: "🚗 Transportation options:\n\n• Private taxi/car rental\n• Bus services (AC/Non-AC)\n• Train connectivity\n• Flight + local transport\n• Temple-provided shuttles\n• Walking paths for nearby temples\n\nI can suggest the best route based on your starting point!",
					},
				},
			},
		},
		Default: Persona{
			Welcome:      "🙏 Welcome to Temple Guardian AI! How can I assist you with your spiritual journey today?",
			SystemPrompt: "You are a helpful Temple Guardian AI assistant. Provide information about Indian temples, spiritual practices, and travel guidance with respect and cultural sensitivity.",
		},
		Common: []KeywordGroup{
			{
				Keywords: []string{"hello", "hi", "namaste"},
				Response: "🙏 Namaste! I'm here to help with your spiritual journey. As your %s assistant, I can provide detailed guidance. What would you like to know?",
			},
			{
				Keywords: []string{"thank", "thanks"},
				Response: "🙏 You're most welcome! May your temple visits bring you peace, blessings, and spiritual fulfillment. Feel free to ask if you need any more assistance!",
			},
		},
		Unclear: "I'm here to help with your temple visit planning. Could you please be more specific about what you'd like to know?",
		Apology: "As your %s assistant, I can help with temple information, accessibility, planning, and more. Could you please rephrase your question or be more specific about what you'd like to know?",
	}
}
