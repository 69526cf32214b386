// Package captcha renders distorted-text challenges as PNG data URIs.
package captcha

import (
	"errors"
	"fmt"
	"image/color"

	"github.com/mojocn/base64Captcha"
)

// Options control the rendered challenge.
type Options struct {
	Width      int
	Height     int
	Length     int
	NoiseCount int
	Source     string
	Background color.RGBA
}

// DefaultOptions matches the challenge shape served to the web client:
// six characters on a light 200x100 canvas with two noise lines.
func DefaultOptions() Options {
	return Options{
		Width:      200,
		Height:     100,
		Length:     6,
		NoiseCount: 2,
		// Ambiguous glyphs (0/O, 1/l/I) are left out.
		Source:     "23456789abcdefghjkmnpqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ",
		Background: color.RGBA{R: 0xf0, G: 0xf0, B: 0xf0, A: 0xff},
	}
}

// Renderer produces a fresh challenge answer and its displayable image.
type Renderer struct {
	driver *base64Captcha.DriverString
}

// NewRenderer creates a renderer with the given options.
func NewRenderer(opts Options) (*Renderer, error) {
	if opts.Length <= 0 || opts.Width <= 0 || opts.Height <= 0 {
		return nil, errors.New("captcha: width, height and length must be positive")
	}
	if opts.Source == "" {
		opts.Source = DefaultOptions().Source
	}

	bg := opts.Background
	driver := base64Captcha.NewDriverString(
		opts.Height,
		opts.Width,
		opts.NoiseCount,
		base64Captcha.OptionShowSlimeLine|base64Captcha.OptionShowHollowLine,
		opts.Length,
		opts.Source,
		&bg,
		nil,
		nil,
	).ConvertFonts()

	return &Renderer{driver: driver}, nil
}

// Render returns the expected answer and a data URI holding the image.
func (r *Renderer) Render() (answer string, image string, err error) {
	_, question, answer := r.driver.GenerateIdQuestionAnswer()

	item, err := r.driver.DrawCaptcha(question)
	if err != nil {
		return "", "", fmt.Errorf("captcha: draw: %w", err)
	}

	return answer, item.EncodeB64string(), nil
}
