package excel

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Border sides accepted in CellStyle.Borders.
const (
	SideLeft   = "left"
	SideRight  = "right"
	SideTop    = "top"
	SideBottom = "bottom"
)

var borderStyles = map[string]int{
	"thin":             1,
	"medium":           2,
	"dashed":           3,
	"dotted":           4,
	"thick":            5,
	"double":           6,
	"hair":             7,
	"mediumDashed":     8,
	"dashDot":          9,
	"mediumDashDot":    10,
	"dashDotDot":       11,
	"mediumDashDotDot": 12,
	"slantDashDot":     13,
}

// Font describes the font part of a cell style.
type Font struct {
	Name   string  `mapstructure:"name"`
	Color  string  `mapstructure:"color"`
	Size   float64 `mapstructure:"size"`
	Bold   bool    `mapstructure:"bold"`
	Italic bool    `mapstructure:"italic"`
}

// Fill is a solid background fill.
type Fill struct {
	Color string `mapstructure:"color"`
}

// Alignment describes horizontal and vertical text alignment.
type Alignment struct {
	Horizontal string `mapstructure:"horizontal"`
	Vertical   string `mapstructure:"vertical"`
}

// Border describes one side of a cell border.
type Border struct {
	Style string `mapstructure:"style"`
	Color string `mapstructure:"color"`
}

// CellStyle is a declarative style preset. Every part is optional; parts
// that are set replace the matching part of the cell's current style and
// parts that are nil leave it alone.
type CellStyle struct {
	Font      *Font             `mapstructure:"font"`
	Fill      *Fill             `mapstructure:"fill"`
	Alignment *Alignment        `mapstructure:"alignment"`
	Borders   map[string]Border `mapstructure:"borders"`
}

// IsZero reports whether the preset would leave a cell unchanged.
func (s *CellStyle) IsZero() bool {
	return s == nil || (s.Font == nil && s.Fill == nil && s.Alignment == nil && len(s.Borders) == 0)
}

// Uncovered returns the parts of s that other leaves unset.
func (s *CellStyle) Uncovered(other *CellStyle) *CellStyle {
	if s == nil {
		return nil
	}
	if other == nil {
		other = &CellStyle{}
	}
	out := &CellStyle{}
	if s.Font != nil && other.Font == nil {
		out.Font = s.Font
	}
	if s.Fill != nil && other.Fill == nil {
		out.Fill = s.Fill
	}
	if s.Alignment != nil && other.Alignment == nil {
		out.Alignment = s.Alignment
	}
	if len(s.Borders) > 0 && len(other.Borders) == 0 {
		out.Borders = s.Borders
	}
	return out
}

// Validate checks border names and colors.
func (s *CellStyle) Validate() error {
	if s == nil {
		return nil
	}
	for side, b := range s.Borders {
		switch side {
		case SideLeft, SideRight, SideTop, SideBottom:
		default:
			return fmt.Errorf("unknown border side %q", side)
		}
		if _, ok := borderStyles[b.Style]; !ok {
			return fmt.Errorf("unknown border style %q on %s side", b.Style, side)
		}
		if err := validateColor(b.Color); err != nil {
			return fmt.Errorf("border %s: %w", side, err)
		}
	}
	if s.Font != nil {
		if err := validateColor(s.Font.Color); err != nil {
			return fmt.Errorf("font: %w", err)
		}
	}
	if s.Fill != nil {
		if s.Fill.Color == "" {
			return fmt.Errorf("fill: missing color")
		}
		if err := validateColor(s.Fill.Color); err != nil {
			return fmt.Errorf("fill: %w", err)
		}
	}
	return nil
}

// overlay returns a copy of base with the preset's parts applied.
func (s *CellStyle) overlay(base *excelize.Style) *excelize.Style {
	out := *base
	if s.Font != nil {
		out.Font = &excelize.Font{
			Family: s.Font.Name,
			Size:   s.Font.Size,
			Bold:   s.Font.Bold,
			Italic: s.Font.Italic,
			Color:  normalizeColor(s.Font.Color),
		}
	}
	if s.Fill != nil {
		out.Fill = excelize.Fill{
			Type:    "pattern",
			Pattern: 1,
			Color:   []string{normalizeColor(s.Fill.Color)},
		}
	}
	if s.Alignment != nil {
		out.Alignment = &excelize.Alignment{
			Horizontal: s.Alignment.Horizontal,
			Vertical:   s.Alignment.Vertical,
		}
	}
	if len(s.Borders) > 0 {
		out.Border = make([]excelize.Border, 0, len(s.Borders))
		for _, side := range []string{SideLeft, SideRight, SideTop, SideBottom} {
			b, ok := s.Borders[side]
			if !ok {
				continue
			}
			color := b.Color
			if color == "" {
				color = "000000"
			}
			out.Border = append(out.Border, excelize.Border{
				Type:  side,
				Style: borderStyles[b.Style],
				Color: normalizeColor(color),
			})
		}
	}
	return &out
}

func validateColor(c string) error {
	if c == "" {
		return nil
	}
	hex := strings.TrimPrefix(c, "#")
	if len(hex) != 6 {
		return fmt.Errorf("color %q must be a 6-digit hex value", c)
	}
	for _, r := range hex {
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return fmt.Errorf("color %q must be a 6-digit hex value", c)
		}
	}
	return nil
}

func normalizeColor(c string) string {
	if c == "" {
		return ""
	}
	return "#" + strings.ToUpper(strings.TrimPrefix(c, "#"))
}

func allSides(style, color string) map[string]Border {
	b := Border{Style: style, Color: color}
	return map[string]Border{SideLeft: b, SideRight: b, SideTop: b, SideBottom: b}
}

// DefaultHeaderStyle is bold black text on green with medium borders.
func DefaultHeaderStyle() CellStyle {
	return CellStyle{
		Font:      &Font{Bold: true, Color: "000000"},
		Fill:      &Fill{Color: "4CAF50"},
		Alignment: &Alignment{Horizontal: "left", Vertical: "center"},
		Borders:   allSides("medium", "000000"),
	}
}

// DefaultRowStyle is Calibri 11 on pale green with thin borders.
func DefaultRowStyle() CellStyle {
	return CellStyle{
		Font:      &Font{Name: "Calibri", Size: 11, Color: "000000"},
		Fill:      &Fill{Color: "D9EAD3"},
		Alignment: &Alignment{Horizontal: "left", Vertical: "center"},
		Borders:   allSides("thin", "000000"),
	}
}

// DefaultOverdueStyle paints the cell light red.
func DefaultOverdueStyle() CellStyle {
	return CellStyle{
		Font: &Font{Color: "000000"},
		Fill: &Fill{Color: "FFCCCC"},
	}
}
