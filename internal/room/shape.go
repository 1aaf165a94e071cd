package room

import "encoding/json"

// ShapeKind enumerates the tagged-union variants ShapeData can take (§3).
type ShapeKind string

const (
	ShapeRectangle ShapeKind = "rectangle"
	ShapeCircle    ShapeKind = "circle"
	ShapeLine      ShapeKind = "line"
	ShapeTriangle  ShapeKind = "triangle"
	ShapeText      ShapeKind = "text"
	ShapeImage     ShapeKind = "image"
)

// ShapeData is the common projection of an addShape/updateShape envelope
// used for indexing and spatial queries. The full envelope — including any
// kind-specific fields beyond these — is kept verbatim as Raw, since the
// router broadcasts shapes unchanged rather than re-serializing them.
type ShapeData struct {
	ID       string    `json:"id"`
	Kind     ShapeKind `json:"shapeType,omitempty"`
	X        float64   `json:"x"`
	Y        float64   `json:"y"`
	Width    float64   `json:"width,omitempty"`
	Height   float64   `json:"height,omitempty"`
	Radius   float64   `json:"radius,omitempty"`
	EndX     float64   `json:"endX,omitempty"`
	EndY     float64   `json:"endY,omitempty"`
	Color    string    `json:"color,omitempty"`
	Size     float64   `json:"size,omitempty"`
	Username string    `json:"username,omitempty"`
	Text     string    `json:"text,omitempty"`
	FontSize float64   `json:"fontSize,omitempty"`
	URL      string    `json:"url,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// ParseShapeData extracts the indexable projection from a raw addShape /
// updateShape envelope. The caller is responsible for confirming "id" is
// present; an empty ID means the envelope cannot be indexed.
func ParseShapeData(raw json.RawMessage) (ShapeData, error) {
	var sd ShapeData
	if err := json.Unmarshal(raw, &sd); err != nil {
		return ShapeData{}, err
	}
	sd.Raw = append(json.RawMessage(nil), raw...)
	return sd, nil
}
