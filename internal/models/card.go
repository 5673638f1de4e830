package models

// Color of an organ, virus or medicine card. ColorAny is the multicolor
// wildcard that matches every other color.
type Color string

const (
	ColorRed    Color = "red"
	ColorGreen  Color = "green"
	ColorBlue   Color = "blue"
	ColorYellow Color = "yellow"
	ColorAny    Color = "any"
)

// Matches reports whether two colors are compatible for stacking: equal, or
// either side is the wildcard.
func (c Color) Matches(other Color) bool {
	return c == other || c == ColorAny || other == ColorAny
}

// CardKind discriminates the four card families.
type CardKind string

const (
	KindOrgan     CardKind = "organ"
	KindVirus     CardKind = "virus"
	KindMedicine  CardKind = "medicine"
	KindTreatment CardKind = "treatment"
)

// TreatmentKind identifies the five treatment cards.
type TreatmentKind string

const (
	TreatmentTransplant   TreatmentKind = "transplant"
	TreatmentOrganThief   TreatmentKind = "organ_thief"
	TreatmentInfection    TreatmentKind = "infection"
	TreatmentLatexGlove   TreatmentKind = "latex_glove"
	TreatmentMedicalError TreatmentKind = "medical_error"
)

// Card is a plain value: two cards are the same card exactly when their
// fields are equal. Organ/virus/medicine cards carry a Color; treatment
// cards carry a Treatment kind instead.
type Card struct {
	Kind      CardKind      `json:"kind"`
	Color     Color         `json:"color,omitempty"`
	Treatment TreatmentKind `json:"treatment,omitempty"`
}

func (c Card) IsOrgan() bool     { return c.Kind == KindOrgan }
func (c Card) IsVirus() bool     { return c.Kind == KindVirus }
func (c Card) IsMedicine() bool  { return c.Kind == KindMedicine }
func (c Card) IsTreatment() bool { return c.Kind == KindTreatment }

// IsSimple reports whether the card stacks onto organ piles (everything but
// treatments).
func (c Card) IsSimple() bool { return c.Kind != KindTreatment }
