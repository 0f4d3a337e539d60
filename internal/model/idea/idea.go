package idea

// Idea is a predefined prompt card offered on an empty conversation.
type Idea struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

// Prompt is the text submitted when the card is selected.
func (i Idea) Prompt() string {
	return i.Title + " " + i.Text
}

// Seed provides the default suggestion cards.
func Seed() []Idea {
	return []Idea{
		{
			ID:    "explain-react-native",
			Title: "Explica React Native",
			Text:  "como si tuviera cinco años",
		},
		{
			ID:    "family-activities",
			Title: "Sugiéreme actividades divertidas",
			Text:  "para una familia visitando Madrid",
		},
		{
			ID:    "recommend-dish",
			Title: "Recomienda un plato",
			Text:  "para impresionar a una cita que es muy selectiva con la comida",
		},
	}
}
