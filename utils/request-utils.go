package utils

import (
	"io"
	"mime/multipart"
	"net/http"
	"strings"
)

// MultipartResult carries the uploaded feature collection (or a path to
// one) plus the form fields the editing endpoints understand.
type MultipartResult struct {
	File       string
	Properties Properties
}

type Properties struct {
	FilePath          string
	SaveFile          bool
	FeatureCollection string
	EditedID          string
	LinkedIDs         []string
}

// ReadMultiPartForm pulls the file under fileKey and the known form
// fields out of a multipart request. Missing fields stay zero.
func ReadMultiPartForm(r *http.Request, fileKey string) MultipartResult {
	result := MultipartResult{}
	if err := r.ParseMultipartForm(512 << 20); err != nil || r.MultipartForm == nil {
		return result
	}

	var fileHeader *multipart.FileHeader
	for key, value := range r.MultipartForm.File {
		if key == fileKey && len(value) > 0 {
			fileHeader = value[0]
		}
	}

	for key, value := range r.MultipartForm.Value {
		if len(value) == 0 {
			continue
		}
		switch key {
		case "filepath":
			result.Properties.FilePath = value[0]
		case "saveFile":
			result.Properties.SaveFile = value[0] == "true"
		case "featureCollection":
			result.Properties.FeatureCollection = value[0]
		case "editedId":
			result.Properties.EditedID = value[0]
		case "linkedIds":
			for _, id := range strings.Split(value[0], ",") {
				if id = strings.TrimSpace(id); id != "" {
					result.Properties.LinkedIDs = append(result.Properties.LinkedIDs, id)
				}
			}
		}
	}

	if fileHeader != nil {
		file, err := fileHeader.Open()
		if err != nil {
			return result
		}
		defer file.Close()
		if fullFile, err := io.ReadAll(file); err == nil {
			result.File = string(fullFile)
		}
	}
	return result
}
