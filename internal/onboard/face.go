package onboard

import (
	"bytes"
	"fmt"
	"image/jpeg"
)

// FaceChecker decides whether a verification photo plausibly contains a face.
type FaceChecker interface {
	ContainsFace(jpegData []byte) (bool, error)
}

// SkinToneChecker is a lightweight face presence heuristic: it samples pixels
// and accepts the photo when the share of skin-toned pixels exceeds a
// threshold. It is intentionally crude — the photo is reviewed by HR staff
// later; this only rejects obviously faceless shots (lens covered, camera
// pointed away).
type SkinToneChecker struct {
	// Threshold is the minimum skin-toned pixel ratio. Zero means 2%.
	Threshold float64

	// Stride samples every Nth pixel in both dimensions. Zero means 4.
	Stride int
}

// ContainsFace decodes the JPEG and applies the skin-tone ratio test.
func (c SkinToneChecker) ContainsFace(jpegData []byte) (bool, error) {
	threshold := c.Threshold
	if threshold == 0 {
		threshold = 0.02
	}
	stride := c.Stride
	if stride <= 0 {
		stride = 4
	}

	img, err := jpeg.Decode(bytes.NewReader(jpegData))
	if err != nil {
		return false, fmt.Errorf("onboard: decode photo: %w", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return false, nil
	}

	var sampled, skin int
	for y := bounds.Min.Y; y < bounds.Max.Y; y += stride {
		for x := bounds.Min.X; x < bounds.Max.X; x += stride {
			r16, g16, b16, _ := img.At(x, y).RGBA()
			r, g, b := int(r16>>8), int(g16>>8), int(b16>>8)
			sampled++
			if isSkinTone(r, g, b) {
				skin++
			}
		}
	}
	if sampled == 0 {
		return false, nil
	}
	return float64(skin)/float64(sampled) > threshold, nil
}

// isSkinTone is the classic RGB skin classifier: warm, red-dominant pixels
// with enough red/green separation.
func isSkinTone(r, g, b int) bool {
	return r > 95 && g > 40 && b > 20 &&
		r > g && r > b &&
		r-g > 15
}

var _ FaceChecker = SkinToneChecker{}

// FaceCheckerFunc adapts a function to the FaceChecker interface.
type FaceCheckerFunc func(jpegData []byte) (bool, error)

// ContainsFace calls f.
func (f FaceCheckerFunc) ContainsFace(jpegData []byte) (bool, error) {
	return f(jpegData)
}
