package catalog

// DefaultLanguage is used when a requested language has no lexicon.
const DefaultLanguage = "en"

type attentionItem struct {
	prompt  string
	options []string
	correct int
}

type lexicon struct {
	words []string

	wordRecallPrompt string
	digitSpanPrompt  string
	clockPrompt      string

	readingPrompt     string
	descriptionPrompt string
	fluencyPrompt     string

	attention []attentionItem
}

var lexicons = map[string]lexicon{
	"en": {
		words: []string{
			"apple", "river", "candle", "garden", "window", "horse", "pencil",
			"mountain", "bread", "violin", "lemon", "button", "bridge", "forest",
		},
		wordRecallPrompt: "Memorise these words, then select them in the order they were shown.",
		digitSpanPrompt:  "Memorise the digits, then select them in the same order.",
		clockPrompt:      "Describe how you would draw a clock showing ten past eleven.",

		readingPrompt:     "Read the following passage aloud: \"The sun rose over the quiet village as the baker opened his shop.\"",
		descriptionPrompt: "Describe everything you can see in a busy kitchen.",
		fluencyPrompt:     "Name as many animals as you can.",

		attention: []attentionItem{
			{prompt: "Which number comes next: 2, 4, 6, ...?", options: []string{"7", "8", "9", "10"}, correct: 1},
			{prompt: "Which word does not belong?", options: []string{"chair", "table", "banana", "sofa"}, correct: 2},
			{prompt: "How many times does the letter A appear in \"BANANA\"?", options: []string{"2", "3", "4", "1"}, correct: 1},
		},
	},
	"es": {
		words: []string{
			"manzana", "río", "vela", "jardín", "ventana", "caballo", "lápiz",
			"montaña", "pan", "violín", "limón", "botón", "puente", "bosque",
		},
		wordRecallPrompt: "Memorice estas palabras y luego selecciónelas en el orden en que aparecieron.",
		digitSpanPrompt:  "Memorice los dígitos y luego selecciónelos en el mismo orden.",
		clockPrompt:      "Describa cómo dibujaría un reloj que marque las once y diez.",

		readingPrompt:     "Lea en voz alta: \"El sol salió sobre el pueblo tranquilo mientras el panadero abría su tienda.\"",
		descriptionPrompt: "Describa todo lo que puede ver en una cocina concurrida.",
		fluencyPrompt:     "Nombre todos los animales que pueda.",

		attention: []attentionItem{
			{prompt: "¿Qué número sigue: 2, 4, 6, ...?", options: []string{"7", "8", "9", "10"}, correct: 1},
			{prompt: "¿Qué palabra no pertenece al grupo?", options: []string{"silla", "mesa", "plátano", "sofá"}, correct: 2},
			{prompt: "¿Cuántas veces aparece la letra A en \"BANANA\"?", options: []string{"2", "3", "4", "1"}, correct: 1},
		},
	},
	"fr": {
		words: []string{
			"pomme", "rivière", "bougie", "jardin", "fenêtre", "cheval", "crayon",
			"montagne", "pain", "violon", "citron", "bouton", "pont", "forêt",
		},
		wordRecallPrompt: "Mémorisez ces mots, puis sélectionnez-les dans l'ordre où ils sont apparus.",
		digitSpanPrompt:  "Mémorisez les chiffres, puis sélectionnez-les dans le même ordre.",
		clockPrompt:      "Décrivez comment vous dessineriez une horloge indiquant onze heures dix.",

		readingPrompt:     "Lisez à voix haute : « Le soleil se levait sur le village tranquille quand le boulanger ouvrit sa boutique. »",
		descriptionPrompt: "Décrivez tout ce que vous voyez dans une cuisine animée.",
		fluencyPrompt:     "Nommez autant d'animaux que possible.",

		attention: []attentionItem{
			{prompt: "Quel nombre vient ensuite : 2, 4, 6, ... ?", options: []string{"7", "8", "9", "10"}, correct: 1},
			{prompt: "Quel mot n'appartient pas au groupe ?", options: []string{"chaise", "table", "banane", "canapé"}, correct: 2},
			{prompt: "Combien de fois la lettre A apparaît-elle dans « BANANA » ?", options: []string{"2", "3", "4", "1"}, correct: 1},
		},
	},
}

// Languages returns the language codes with a lexicon.
func Languages() []string {
	return []string{"en", "es", "fr"}
}
