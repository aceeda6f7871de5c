package entity

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"image"
	"strings"
)

// IssueType тип найденной проблемы. Порядок значений используется как первичный ключ сортировки.
type IssueType uint8

const (
	IssueEmptyLayer IssueType = iota
	IssuePrintHeight
	IssueTouchingBound
	IssueIsland
	IssueOverhang
	IssueResinTrap
	IssueSuctionCup
)

var issueTypeNames = [...]string{
	IssueEmptyLayer:    "EmptyLayer",
	IssuePrintHeight:   "PrintHeight",
	IssueTouchingBound: "TouchingBound",
	IssueIsland:        "Island",
	IssueOverhang:      "Overhang",
	IssueResinTrap:     "ResinTrap",
	IssueSuctionCup:    "SuctionCup",
}

// IssueTypes возвращает все типы в порядке сортировки.
func IssueTypes() []IssueType {
	return []IssueType{
		IssueEmptyLayer, IssuePrintHeight, IssueTouchingBound,
		IssueIsland, IssueOverhang, IssueResinTrap, IssueSuctionCup,
	}
}

func (t IssueType) String() string {
	if int(t) < len(issueTypeNames) {
		return issueTypeNames[t]
	}
	return fmt.Sprintf("IssueType(%d)", t)
}

// MarshalText позволяет выводить тип по имени в JSON-отчётах.
func (t IssueType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText разбирает имя типа без учёта регистра.
func (t *IssueType) UnmarshalText(text []byte) error {
	for i, name := range issueTypeNames {
		if strings.EqualFold(name, string(text)) {
			*t = IssueType(i)
			return nil
		}
	}
	return fmt.Errorf("unknown issue type %q", text)
}

// PayloadKind определяет, какая часть Payload заполнена.
type PayloadKind uint8

const (
	PayloadNone PayloadKind = iota
	PayloadPoints
	PayloadContours
)

// Payload геометрия проблемы: либо набор точек, либо набор контуров.
type Payload struct {
	Kind     PayloadKind   `json:"kind"`
	Points   []image.Point `json:"points,omitempty"`
	Contours []Contour     `json:"contours,omitempty"`
}

// PointsPayload оборачивает набор пикселей.
func PointsPayload(points []image.Point) Payload {
	return Payload{Kind: PayloadPoints, Points: points}
}

// ContoursPayload оборачивает набор полигонов.
func ContoursPayload(contours []Contour) Payload {
	return Payload{Kind: PayloadContours, Contours: contours}
}

// Issue одна конкретная проблема на одном слое.
type Issue struct {
	Type       IssueType       `json:"type"`
	LayerIndex int             `json:"layer_index"`
	Bounds     image.Rectangle `json:"bounds"`
	Area       float64         `json:"area"`
	Payload    Payload         `json:"payload"`
}

// NewLayerIssue создаёт проблему без геометрии, покрывающую весь слой.
func NewLayerIssue(t IssueType, layer *Layer) Issue {
	return Issue{Type: t, LayerIndex: layer.Index, Bounds: layer.Bounds}
}

// NewPointsIssue создаёт проблему из набора пикселей; площадь равна числу пикселей.
func NewPointsIssue(t IssueType, layerIndex int, points []image.Point, bounds image.Rectangle) Issue {
	if bounds.Empty() {
		bounds = pointsBounds(points)
	}
	return Issue{
		Type:       t,
		LayerIndex: layerIndex,
		Bounds:     bounds,
		Area:       float64(len(points)),
		Payload:    PointsPayload(points),
	}
}

// NewContoursIssue создаёт проблему из группы контуров с заранее посчитанной площадью.
func NewContoursIssue(t IssueType, layerIndex int, contours []Contour, area float64) Issue {
	var bounds image.Rectangle
	if len(contours) > 0 {
		bounds = contours[0].Bounds()
	}
	return Issue{
		Type:       t,
		LayerIndex: layerIndex,
		Bounds:     bounds,
		Area:       area,
		Payload:    ContoursPayload(contours),
	}
}

// Fingerprint идентифицирует проблему для списка игнорируемых.
func (i Issue) Fingerprint() Fingerprint {
	h := fnv.New64a()
	var buf [8]byte
	write := func(p image.Point) {
		binary.LittleEndian.PutUint32(buf[:4], uint32(int32(p.X)))
		binary.LittleEndian.PutUint32(buf[4:], uint32(int32(p.Y)))
		_, _ = h.Write(buf[:])
	}
	switch i.Payload.Kind {
	case PayloadPoints:
		for _, p := range i.Payload.Points {
			write(p)
		}
	case PayloadContours:
		for _, c := range i.Payload.Contours {
			for _, p := range c {
				write(p)
			}
			_, _ = h.Write([]byte{0xff})
		}
	}

	return Fingerprint{
		Type:       i.Type,
		LayerIndex: i.LayerIndex,
		Bounds:     i.Bounds,
		Geometry:   h.Sum64(),
	}
}

func pointsBounds(points []image.Point) image.Rectangle {
	if len(points) == 0 {
		return image.Rectangle{}
	}
	r := image.Rectangle{Min: points[0], Max: points[0].Add(image.Pt(1, 1))}
	for _, p := range points[1:] {
		r = r.Union(image.Rectangle{Min: p, Max: p.Add(image.Pt(1, 1))})
	}
	return r
}
