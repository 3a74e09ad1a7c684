package composite

import (
	"encoding/xml"
	"fmt"
	"io"
)

// Placement descriptors arrive and leave as KML GroundOverlay documents,
// the format SPLAT! and Google Earth exchange coverage rasters in. Only the
// <LatLonBox> corners matter to the engine.

type latLonBox struct {
	North float64 `xml:"north"`
	South float64 `xml:"south"`
	East  float64 `xml:"east"`
	West  float64 `xml:"west"`
}

// ParseLatLonBox extracts the first <LatLonBox> from a KML document,
// ignoring namespaces, and validates it.
func ParseLatLonBox(r io.Reader) (BoundingBox, error) {
	dec := xml.NewDecoder(r)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return BoundingBox{}, fmt.Errorf("kml: no <LatLonBox> element found")
		}
		if err != nil {
			return BoundingBox{}, fmt.Errorf("kml: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "LatLonBox" {
			continue
		}
		var llb latLonBox
		if err := dec.DecodeElement(&llb, &start); err != nil {
			return BoundingBox{}, fmt.Errorf("kml: bad <LatLonBox>: %w", err)
		}
		bbox := BoundingBox{North: llb.North, South: llb.South, East: llb.East, West: llb.West}
		if err := bbox.Validate(); err != nil {
			return BoundingBox{}, fmt.Errorf("kml: %w", err)
		}
		return bbox, nil
	}
}

type kmlOverlayXY struct {
	X      float64 `xml:"x,attr"`
	Y      float64 `xml:"y,attr"`
	XUnits string  `xml:"xunits,attr"`
	YUnits string  `xml:"yunits,attr"`
}

type kmlIcon struct {
	Href string `xml:"href"`
}

type kmlGroundOverlay struct {
	Name      string    `xml:"name"`
	Icon      kmlIcon   `xml:"Icon"`
	LatLonBox latLonBox `xml:"LatLonBox"`
}

type kmlScreenOverlay struct {
	Name       string       `xml:"name"`
	Icon       kmlIcon      `xml:"Icon"`
	OverlayXY  kmlOverlayXY `xml:"overlayXY"`
	ScreenXY   kmlOverlayXY `xml:"screenXY"`
	RotationXY kmlOverlayXY `xml:"rotationXY"`
	Size       kmlOverlayXY `xml:"size"`
}

type kmlFolder struct {
	Name          string            `xml:"name"`
	GroundOverlay kmlGroundOverlay  `xml:"GroundOverlay"`
	ScreenOverlay *kmlScreenOverlay `xml:"ScreenOverlay,omitempty"`
}

type kmlDocument struct {
	XMLName xml.Name  `xml:"kml"`
	XMLNS   string    `xml:"xmlns,attr"`
	Folder  kmlFolder `xml:"Folder"`
}

// Overlay describes the output placement document: the composited raster
// draped over bounds, with an optional screen-pinned legend image.
type Overlay struct {
	Name       string
	ImageHref  string
	LegendHref string
	Bounds     BoundingBox
}

// EncodeOverlayKML writes ov as a KML Folder holding one GroundOverlay and,
// when LegendHref is set, one ScreenOverlay pinned to the top-left corner.
// The document round-trips through ParseLatLonBox.
func EncodeOverlayKML(w io.Writer, ov Overlay) error {
	doc := kmlDocument{
		XMLNS: "http://www.opengis.net/kml/2.2",
		Folder: kmlFolder{
			Name: ov.Name,
			GroundOverlay: kmlGroundOverlay{
				Name: "Coverage Map",
				Icon: kmlIcon{Href: ov.ImageHref},
				LatLonBox: latLonBox{
					North: ov.Bounds.North,
					South: ov.Bounds.South,
					East:  ov.Bounds.East,
					West:  ov.Bounds.West,
				},
			},
		},
	}
	if ov.LegendHref != "" {
		fraction := func(x, y float64) kmlOverlayXY {
			return kmlOverlayXY{X: x, Y: y, XUnits: "fraction", YUnits: "fraction"}
		}
		doc.Folder.ScreenOverlay = &kmlScreenOverlay{
			Name:       "Legend",
			Icon:       kmlIcon{Href: ov.LegendHref},
			OverlayXY:  fraction(0, 1),
			ScreenXY:   fraction(0, 1),
			RotationXY: fraction(0, 0),
			Size:       kmlOverlayXY{XUnits: "pixels", YUnits: "pixels"},
		}
	}
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}
