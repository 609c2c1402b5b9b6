package prompts

import (
	"fmt"
	"strings"

	"lumina/internal/storage"
)

// HistoryCharBudget caps the transcript text sent with each director round.
// Truncation drops the oldest messages first.
const HistoryCharBudget = 2000

const analysisPromptTemplate = `You are Lumina, a world-class Interior Designer.
Analyze this interior image. %s

1. CLASSIFY the room accurately within the context of %s.
   - If Residential: Living Room, Bedroom, Kitchen, etc.
   - If Commercial: Open Plan Office, Executive Suite, Conference Room, Co-working Space, Retail Store, Lobby.
2. Describe architectural features and MATERIALS explicitly (e.g., "Herringbone oak flooring", "Exposed concrete ceiling", "Floor-to-ceiling glass windows", "White drywall").
3. Identify design issues specific to the function.
4. PROACTIVELY suggest additions appropriate to the context.

Return JSON matching this schema:
{
  "room_type": "string",
  "architectural_features": ["string"],
  "design_issues": ["string"],
  "decor_suggestions": ["string"],
  "suggested_prompts": [
    { "title": "string", "description": "string", "prompt": "string" }
  ]
}`

// BuildAnalysisPrompt composes the room-analysis instruction, biased by the
// declared room context.
func BuildAnalysisPrompt(roomContext storage.RoomContext) string {
	contextInstruction := fmt.Sprintf(
		"IMPORTANT: The user has explicitly identified this as a %s space. Ensure all classification, design issues, and suggestions strictly align with a %s environment.",
		roomContext, roomContext)
	return fmt.Sprintf(analysisPromptTemplate, contextInstruction, roomContext)
}

const directorSystemTemplate = `You are Lumina, an expert AI Interior Designer in a professional consultation with a client.

CONTEXT:
1. **Original Reality**: %s
2. **Task**: You are modifying this space based on user requests.

CRITICAL "DIRECTOR" LOGIC:
You are not just chatting; you are directing an image generation model. When the user asks for a visual change, you must produce a structured edit draft that is EXTREMELY PRECISE.

Rule 1: ISOLATION (The "Only" Rule)
- If the user says "Change the rug", it IMPLIES "Keep the walls, floor, ceiling, and furniture EXACTLY as they are."
- Your draft MUST explicitly list what to PRESERVE.

Rule 2: RESTORATION
- If the user says "Keep the floor" or "Restore the floor", name that element in restore_elements so the original authentic material can be pinned from the Original Reality record.

Rule 3: CONTEXT APPROPRIATENESS
- %s

Rule 4: CONVERSATIONAL INTELLIGENCE
- If the request is purely conversational (questions, clarifications, feedback), omit the draft entirely.
- Only produce a draft when the user explicitly wants a visual change.

Response Format (JSON):
{
  "text": "Warm, professional response confirming exactly what you are changing and what you are preserving.",
  "target_elements": ["elements to change, or omit when just chatting"],
  "preserve_elements": ["specific original elements to keep untouched"],
  "restore_elements": ["elements the user wants reverted to the original"]
}`

// BuildDirectorSystem composes the director system instruction from the
// session's immutable baseline.
func BuildDirectorSystem(analysis *storage.RoomAnalysis, roomContext storage.RoomContext) string {
	originalReality := "Original features unknown."
	if analysis != nil {
		originalReality = fmt.Sprintf(
			"Original Room Type: %s. Original Authentic Materials (The \"Before\" state): %s. Current Context: %s.",
			analysis.RoomType,
			strings.Join(analysis.ArchitecturalFeatures, ", "),
			roomContext)
	}

	contextRule := "DO NOT suggest commercial office elements (cubicles, conference tables) unless explicitly requested."
	if roomContext == storage.ContextCommercial {
		contextRule = "DO NOT suggest residential elements (beds, cozy home decor) unless explicitly requested."
	}

	return fmt.Sprintf(directorSystemTemplate, originalReality, contextRule)
}

// BuildDirectorTurn renders the per-round user content: the request plus a
// clipped transcript of the conversation so far.
func BuildDirectorTurn(userMessage, history string) string {
	return fmt.Sprintf("User Request: %q\nConversation History: %s", userMessage, history)
}

// EditConstraints are appended verbatim to EVERY edit payload, isolation
// sensitive or not. They are the primary defense against model drift.
const EditConstraints = `STRICT GENERATION CONSTRAINTS:
1. PRESERVATION PRIORITY: If the prompt asks to "Retain", "Keep", "Existing", or "Preserve" an element, that specific area MUST remain visually identical to the input image (same material, texture, color).
2. GEOMETRY: Do not change the room layout, window positions, or perspective.
3. ISOLATION: Only modify the specific elements mentioned in the 'CHANGE' section of the prompt. Leave everything else untouched.
4. STYLE: Photorealistic, 8k, high-end interior design photography.`

// StylePreset is one of the classic ready-made transformations.
type StylePreset struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Prompt      string `json:"prompt"`
}

// StylePresets lists the built-in transformations selectable without the chat flow.
var StylePresets = []StylePreset{
	{
		ID:          "modern-minimalist",
		Name:        "Modern Minimalist",
		Description: "Clean lines, neutral palette, clutter-free aesthetic.",
		Prompt:      "Redesign this room in a modern minimalist style, clean lines, neutral colors, decluttered, sleek furniture, soft natural lighting, architectural simplicity",
	},
	{
		ID:          "scandinavian-warm",
		Name:        "Scandinavian Warm",
		Description: "Cozy textures, light woods, airy hygge feel.",
		Prompt:      "Redesign this room in a Scandinavian style, hygge atmosphere, light wood textures, cozy textiles, white walls, warm lighting, functional decor, organic shapes",
	},
	{
		ID:          "luxury-contemporary",
		Name:        "Luxury Contemporary",
		Description: "High-end finishes, bold accents, polished look.",
		Prompt:      "Redesign this room in a luxury contemporary style, high-end finishes, marble accents, velvet textures, gold hardware, dramatic lighting, sophisticated, expensive look",
	},
	{
		ID:          "japandi-calm",
		Name:        "Japandi Calm",
		Description: "Fusion of Japanese rustic & Scandinavian.",
		Prompt:      "Redesign this room in a Japandi style, fusion of Japanese and Scandinavian aesthetics, natural materials, earth tones, low profile furniture, zen atmosphere, wabi-sabi",
	},
	{
		ID:          "industrial-chic",
		Name:        "Industrial Chic",
		Description: "Exposed raw elements, metal, leather, urban.",
		Prompt:      "Redesign this room in an industrial chic style, exposed brick, metal accents, leather furniture, raw materials, urban loft aesthetic, dramatic shadows, statement lighting",
	},
	{
		ID:          "bohemian-eclectic",
		Name:        "Bohemian Eclectic",
		Description: "Layered patterns, plants, vibrant & artistic.",
		Prompt:      "Redesign this room in a bohemian eclectic style, layered patterns, abundant indoor plants, rattan furniture, warm colors, artistic decor, relaxed atmosphere, textured rugs",
	},
}

// PresetByID resolves a classic preset, if it exists.
func PresetByID(id string) (StylePreset, bool) {
	for _, preset := range StylePresets {
		if preset.ID == id {
			return preset, true
		}
	}
	return StylePreset{}, false
}
