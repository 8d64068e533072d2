package nsfw

// Detection is one region reported by the body-part detector.
// The detector emits either "class" or "label" depending on its version.
type Detection struct {
	Class string    `json:"class,omitempty"`
	Label string    `json:"label,omitempty"`
	Score float64   `json:"score"`
	Box   []float64 `json:"box,omitempty"` // x, y, width, height
}

// Name returns the detection label whichever field carried it.
func (d Detection) Name() string {
	if d.Class != "" {
		return d.Class
	}
	return d.Label
}

// DetectRequest is the body of a Detect call.
type DetectRequest struct {
	ImageData []byte `json:"image_data"`
	Filename  string `json:"filename,omitempty"`
}

// DetectResponse is the detector reply.
type DetectResponse struct {
	Detections   []Detection `json:"detections"`
	ModelVersion string      `json:"model_version,omitempty"`
}
