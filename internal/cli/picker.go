package cli

import (
	"errors"

	"github.com/ncruces/zenity"
)

// ErrNoSelection is returned when the file dialog is dismissed.
var ErrNoSelection = errors.New("no file selected")

// PickImageFile opens a native file dialog filtered to image types.
func PickImageFile() (string, error) {
	path, err := zenity.SelectFile(
		zenity.Title("Select an image to inspect"),
		zenity.FileFilters{
			{
				Name: "Images",
				Patterns: []string{
					"*.jpg", "*.jpeg", "*.png", "*.gif", "*.webp",
					"*.bmp", "*.tif", "*.tiff",
				},
			},
		},
	)
	if errors.Is(err, zenity.ErrCanceled) {
		return "", ErrNoSelection
	}
	return path, err
}
