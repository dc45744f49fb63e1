// Package catalog holds the static, runtime-configured list of video
// filenames a session may reference.
package catalog

// DefaultVideos matches the seven sample clips the original service shipped.
var DefaultVideos = []string{
	"test_video_1.mp4",
	"test_video_2.mp4",
	"test_video_3.mp4",
	"test_video_4.mp4",
	"test_video_5.mp4",
	"test_video_6.mp4",
	"test_video_7.mp4",
}

// Catalog is the set of filenames a session is allowed to reference.
type Catalog struct {
	videos map[string]bool
	list   []string
}

// New builds a Catalog from an ordered list of filenames.
func New(videos []string) *Catalog {
	c := &Catalog{
		videos: make(map[string]bool, len(videos)),
		list:   append([]string(nil), videos...),
	}
	for _, v := range videos {
		c.videos[v] = true
	}
	return c
}

// Contains reports whether filename is in the catalogue.
func (c *Catalog) Contains(filename string) bool {
	return c.videos[filename]
}

// List returns the catalogue in its configured order.
func (c *Catalog) List() []string {
	return append([]string(nil), c.list...)
}
