package agent

// Built-in specialist definitions for the iECHO platform. The trigger
// vocabularies mirror the platform's routing rules: TB and health topics on
// one side, agriculture and farming on the other. Anything matching neither,
// or matching both equally, lands on the reject handler.

const tbSystemPrompt = `You are a TB and Health specialist. Use the provided reference passages to give brief, direct answers about:
- TB diagnosis & symptoms; lab tests (smear, GeneXpert), imaging
- Treatment protocols & medications (e.g., HRZE, MDR/XDR management)
- Infection control & prevention strategies
- Patient care guidelines & counseling
Keep responses concise (2-3 sentences). Do NOT reveal internal reasoning.
If an image is attached, use it as additional context.
`

const agricultureSystemPrompt = `You are an Agriculture specialist. Use the provided reference passages to give brief, direct answers about:
- Crop & soil management, irrigation, fertigation, IPM, yield optimization
- Food safety & nutrition, post-harvest handling
- Practical farm best practices & infrastructure
Keep responses concise (2-3 sentences). Do NOT reveal internal reasoning.
If an image is attached, use it as additional context.
`

// RejectMessage is the fixed reply for out-of-domain queries.
const RejectMessage = "I'm sorry, but I can only help with questions related to tuberculosis (TB), agriculture, and related health topics. If you have an image related to TB or agriculture, please describe what you'd like to know about it in your question."

// Topic labels scope knowledge retrieval per specialist.
const (
	TopicTB          = "tuberculosis"
	TopicAgriculture = "agriculture"
)

// TBDefinition declares the tuberculosis and health specialist.
func TBDefinition() Definition {
	return Definition{
		Name:  "tb",
		Topic: TopicTB,
		TriggerTerms: []string{
			"tuberculosis", "tb", "symptom", "symptoms", "diagnosis",
			"treatment", "prevention", "patient", "patient care",
			"nutrition", "health", "public health", "medication",
			"medications", "infection", "cough", "smear", "genexpert",
			"hrze", "mdr", "xdr",
		},
		SystemPrompt: tbSystemPrompt,
	}
}

// AgricultureDefinition declares the agriculture and farming specialist.
func AgricultureDefinition() Definition {
	return Definition{
		Name:  "agriculture",
		Topic: TopicAgriculture,
		TriggerTerms: []string{
			"agriculture", "agricultural", "crop", "crops", "farming",
			"farm", "farmer", "irrigation", "soil", "food safety",
			"livestock", "harvest", "fertilizer", "fertigation", "pest",
			"pesticide", "seed", "seeds", "yield",
		},
		SystemPrompt: agricultureSystemPrompt,
	}
}

// RejectDefinition declares the fallback handler for out-of-domain queries.
func RejectDefinition() Definition {
	return Definition{
		Name:       "reject",
		FixedReply: RejectMessage,
	}
}
