package geojson_test

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/robert-malhotra/stac-cube/pkg/geojson"
)

func ExampleGeometry_BBox() {
	coords := [][][]float64{
		{{9.5, 45.1}, {9.7, 45.1}, {9.7, 45.3}, {9.5, 45.3}, {9.5, 45.1}},
	}
	coordsJSON, _ := json.Marshal(coords)

	g := &geojson.Geometry{
		Type:        "Polygon",
		Coordinates: coordsJSON,
	}

	bbox, err := g.BBox()
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("BBox: [%.1f, %.1f, %.1f, %.1f]\n", bbox[0], bbox[1], bbox[2], bbox[3])
	// Output: BBox: [9.5, 45.1, 9.7, 45.3]
}

func ExampleNewPolygonFromBBox() {
	// A search area crossing the antimeridian is split in two.
	g, err := geojson.NewPolygonFromBBox([]float64{178, -20, 183, -15})
	if err != nil {
		log.Fatal(err)
	}
	parts, err := g.MultiPolygon()
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(g.Type, len(parts))
	fmt.Println(parts[1][0][1])
	// Output:
	// MultiPolygon 2
	// [-177 -20]
}
