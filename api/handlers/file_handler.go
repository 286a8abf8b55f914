package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/devadigapratham/pandaprint/api/models"
	"github.com/devadigapratham/pandaprint/bambu"
	"github.com/devadigapratham/pandaprint/bridge"
	"github.com/gin-gonic/gin"
)

// UploadFile receives a file from a slicer, uploads it to the printer and
// optionally starts printing it
func (h *Handler) UploadFile(c *gin.Context) {
	location := c.Param("location")
	if location != "local" && location != "sdcard" {
		abortError(c, http.StatusNotFound, "invalid_location", fmt.Errorf("unknown location %q", location))
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		abortError(c, http.StatusBadRequest, "file_missing", fmt.Errorf("no file in request: %w", err))
		return
	}

	overrides, err := parseOptions(c)
	if err != nil {
		abortError(c, http.StatusBadRequest, "invalid_option", err)
		return
	}

	f, err := fh.Open()
	if err != nil {
		abortError(c, http.StatusBadRequest, "file_unreadable", err)
		return
	}
	defer f.Close()

	n := node(c)
	job, err := n.Submit(c.Request.Context(), bridge.SubmitRequest{
		Filename:  fh.Filename,
		Content:   f,
		Size:      fh.Size,
		Print:     strings.EqualFold(formValue(c, "print"), "true"),
		Overrides: overrides,
	})
	if err != nil {
		h.submitError(c, job, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"done":   true,
		"job_id": job.ID,
		"files": gin.H{
			"local": gin.H{
				"name":   job.Filename,
				"origin": "local",
			},
		},
	})
}

func (h *Handler) submitError(c *gin.Context, job *models.PrintJob, err error) {
	var (
		uploadErr  *bambu.UploadError
		publishErr *bambu.PublishError
	)
	status, code := http.StatusInternalServerError, "internal_error"
	switch {
	case errors.Is(err, bridge.ErrBusy):
		status, code = http.StatusConflict, "printer_busy"
	case errors.As(err, &uploadErr):
		status, code = http.StatusBadGateway, "upload_failed"
	case errors.Is(err, bambu.ErrNotConnected), errors.As(err, &publishErr):
		status, code = http.StatusBadGateway, "command_failed"
	}

	body := gin.H{"error": code, "message": err.Error()}
	if job != nil {
		body["job_id"] = job.ID
	}
	c.AbortWithStatusJSON(status, body)
}

// parseOptions reads per-request print option overrides
func parseOptions(c *gin.Context) (models.PrintOptions, error) {
	var opts models.PrintOptions
	for _, name := range models.OptionNames {
		raw := formValue(c, name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return opts, fmt.Errorf("option %s: %q is not a boolean", name, raw)
		}
		opts.Set(name, v)
	}
	return opts, nil
}

// formValue looks in the query string first, then in the form body
func formValue(c *gin.Context, key string) string {
	if v, ok := c.GetQuery(key); ok {
		return v
	}
	return c.PostForm(key)
}
