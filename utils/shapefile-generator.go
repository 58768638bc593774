package utils

import (
	"archive/zip"
	"bytes"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/bsaid97/go-patch-editor/engine"
)

// GenerateShapefileZip bundles the exported patch set as a zip holding
// both the GeoJSON and a shapefile. Patch geometries are polygonal by
// construction, so only POLYGON shapes are written.
func GenerateShapefileZip(jsonData []byte, fc *geojson.FeatureCollection, baseName string) ([]byte, error) {
	var zipBuffer bytes.Buffer
	zipWriter := zip.NewWriter(&zipBuffer)

	jsonFile, err := zipWriter.Create(baseName + ".json")
	if err != nil {
		return nil, fmt.Errorf("failed to create JSON file in zip: %v", err)
	}
	if _, err = jsonFile.Write(jsonData); err != nil {
		return nil, fmt.Errorf("failed to write JSON data to zip: %v", err)
	}

	if err = addShapefileToZip(zipWriter, fc, baseName); err != nil {
		return nil, fmt.Errorf("failed to add shapefile to zip: %v", err)
	}

	if err = zipWriter.Close(); err != nil {
		return nil, fmt.Errorf("failed to close zip writer: %v", err)
	}
	return zipBuffer.Bytes(), nil
}

func addShapefileToZip(zipWriter *zip.Writer, fc *geojson.FeatureCollection, baseName string) error {
	tempDir, err := os.MkdirTemp("", "shapefile_")
	if err != nil {
		return fmt.Errorf("failed to create temp directory: %v", err)
	}
	defer os.RemoveAll(tempDir)

	shapefilePath := filepath.Join(tempDir, baseName+".shp")
	if err := generateShapefile(shapefilePath, fc); err != nil {
		return fmt.Errorf("failed to generate shapefile: %v", err)
	}

	for _, ext := range []string{".shp", ".shx", ".dbf"} {
		filePath := strings.TrimSuffix(shapefilePath, ".shp") + ext
		if _, err := os.Stat(filePath); os.IsNotExist(err) {
			continue
		}
		fileContent, err := os.ReadFile(filePath)
		if err != nil {
			return fmt.Errorf("failed to read shapefile component %s: %v", ext, err)
		}
		zipFile, err := zipWriter.Create(baseName + ext)
		if err != nil {
			return fmt.Errorf("failed to create %s file in zip: %v", ext, err)
		}
		if _, err = zipFile.Write(fileContent); err != nil {
			return fmt.Errorf("failed to write %s data to zip: %v", ext, err)
		}
	}
	return nil
}

func generateShapefile(shapefilePath string, fc *geojson.FeatureCollection) error {
	if len(fc.Features) == 0 {
		return fmt.Errorf("no features to write to shapefile")
	}

	shape, err := shp.Create(shapefilePath, shp.POLYGON)
	if err != nil {
		return fmt.Errorf("failed to create shapefile: %v", err)
	}
	defer shape.Close()

	fields := []shp.Field{
		shp.StringField("ID", 64),
		shp.StringField("CODE", 32),
		shp.StringField("NAME", 128),
	}
	shape.SetFields(fields)

	record := 0
	for i, f := range fc.Features {
		mp := engine.NormalizeMultiPolygon(f.Geometry)
		if mp == nil {
			log.Printf("Warning: skipping non-polygon feature %d in shapefile export", i)
			continue
		}
		shape.Write(shapePolygon(mp))

		shape.WriteAttribute(record, 0, propOr(f, "id"))
		shape.WriteAttribute(record, 1, propOr(f, "code"))
		shape.WriteAttribute(record, 2, propOr(f, "name"))
		record++
	}
	return nil
}

// shapePolygon flattens a MultiPolygon into shapefile parts.
func shapePolygon(mp orb.MultiPolygon) *shp.Polygon {
	polygon := &shp.Polygon{}
	partIndex := int32(0)
	for _, poly := range mp {
		for _, ring := range poly {
			closed := engine.EnsureClosed(ring)
			if len(closed) < 4 {
				continue
			}
			polygon.Parts = append(polygon.Parts, partIndex)
			for _, p := range closed {
				polygon.Points = append(polygon.Points, shp.Point{X: p[0], Y: p[1]})
			}
			partIndex += int32(len(closed))
		}
	}
	return polygon
}

func propOr(f *geojson.Feature, key string) string {
	if v, ok := f.Properties[key]; ok {
		return fmt.Sprintf("%v", v)
	}
	return ""
}
