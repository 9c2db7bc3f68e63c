package services

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Loudness holds the loudnorm first-pass measurements, kept as ffmpeg prints them.
type Loudness struct {
	InputI      string `json:"input_i"`
	InputLRA    string `json:"input_lra"`
	InputTP     string `json:"input_tp"`
	InputThresh string `json:"input_thresh"`
}

// parseLoudness extracts the JSON object ffmpeg prints at the end of stderr in loudnorm
// print_format=json mode.
func parseLoudness(stderr []byte) (Loudness, error) {
	lines := strings.Split(strings.TrimRight(string(stderr), "\r\n"), "\n")
	start := -1
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) == "{" {
			start = i
			break
		}
	}
	if start < 0 {
		return Loudness{}, fmt.Errorf("no loudnorm measurements in ffmpeg output")
	}

	var l Loudness
	if err := json.Unmarshal([]byte(strings.Join(lines[start:], "\n")), &l); err != nil {
		return Loudness{}, fmt.Errorf("failed to parse loudnorm measurements: %w", err)
	}
	if l.InputI == "" || l.InputLRA == "" || l.InputTP == "" || l.InputThresh == "" {
		return Loudness{}, fmt.Errorf("incomplete loudnorm measurements: %+v", l)
	}
	return l, nil
}

// Filter returns the second-pass loudnorm filter applying the measurements.
func (l Loudness) Filter() string {
	return fmt.Sprintf("loudnorm=linear=true:measured_I=%s:measured_LRA=%s:measured_tp=%s:measured_thresh=%s",
		l.InputI, l.InputLRA, l.InputTP, l.InputThresh)
}
