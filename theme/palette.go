package theme

import (
	"bufio"
	"bytes"
	"embed"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"

	"go-annotate/tags"
)

//go:embed palettes/*.gpl
var builtin embed.FS

// DefaultPalette is the built-in palette name
const DefaultPalette = "plasma"

type RGB [3]uint8

type Palette struct {
	Name   string
	Colors []RGB
}

// ParseGPL reads a GIMP palette
func ParseGPL(r io.Reader) (*Palette, error) {
	p := &Palette{}
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if strings.HasPrefix(line, "Name:") {
			p.Name = strings.TrimSpace(strings.TrimPrefix(line, "Name:"))
			continue
		}

		// Skip headers and comments
		if line == "" || line[0] == '#' || strings.HasPrefix(line, "GIMP") || strings.HasPrefix(line, "Columns") {
			continue
		}

		// Parse RGB values (first 3 fields are R G B)
		fields := strings.Fields(line)
		if len(fields) >= 3 {
			r, err1 := strconv.Atoi(fields[0])
			g, err2 := strconv.Atoi(fields[1])
			b, err3 := strconv.Atoi(fields[2])
			if err1 == nil && err2 == nil && err3 == nil {
				p.Colors = append(p.Colors, RGB{uint8(r), uint8(g), uint8(b)})
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fault.Wrap(err, fmsg.With("scan palette"), ftag.With(tags.IO))
	}

	if len(p.Colors) == 0 {
		return nil, fault.New("no colors found in palette",
			fmsg.WithDesc("empty palette", "The palette has no colors"),
			ftag.With(tags.Parse))
	}

	return p, nil
}

// LoadGPL resolves name as a built-in palette first, then as a file path
func LoadGPL(name string) (*Palette, error) {
	if name == "" {
		name = DefaultPalette
	}
	if data, err := builtin.ReadFile("palettes/" + name + ".gpl"); err == nil {
		return ParseGPL(bytes.NewReader(data))
	}

	f, err := os.Open(name)
	if err != nil {
		kind := tags.IO
		if os.IsNotExist(err) {
			kind = tags.NotFound
		}
		return nil, fault.Wrap(err,
			fmsg.WithDesc("open palette "+filepath.Base(name), "The palette could not be found"),
			ftag.With(kind))
	}
	defer f.Close()
	return ParseGPL(f)
}

// Default returns the built-in palette
func Default() *Palette {
	p, err := LoadGPL(DefaultPalette)
	if err != nil {
		panic("builtin palette: " + err.Error())
	}
	return p
}

// Lookup returns interpolated color for normalized value 0-1
func (p *Palette) Lookup(norm float64) RGB {
	if norm <= 0 {
		return p.Colors[0]
	}
	if norm >= 1 {
		return p.Colors[len(p.Colors)-1]
	}

	// Find the two colors to interpolate between
	pos := norm * float64(len(p.Colors)-1)
	i := int(pos)
	frac := pos - float64(i)

	c0 := p.Colors[i]
	c1 := p.Colors[i+1]

	return RGB{
		lerp(c0[0], c1[0], frac),
		lerp(c0[1], c1[1], frac),
		lerp(c0[2], c1[2], frac),
	}
}

func lerp(a, b uint8, t float64) uint8 {
	return uint8(float64(a)*(1-t) + float64(b)*t)
}
