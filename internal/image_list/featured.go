package image_list

// Featured is a public-domain large image offered in the picker.
type Featured struct {
	Title  string `json:"title"`
	URL    string `json:"url"`
	Credit string `json:"credit"`
}

var featured = []Featured{
	{
		Title:  "Andromeda Mosaic",
		URL:    "https://assets.science.nasa.gov/content/dam/science/missions/hubble/releases/2025/01/STScI-01JGY8ZEDHYMGM99RF1RQ45YWY.tif/jcr:content/renditions/Reduced%20Res%202.png",
		Credit: "NASA, ESA, B. Williams (University of Washington)",
	},
	{
		Title:  "Andromeda Infrared",
		URL:    "https://assets.science.nasa.gov/content/dam/science/psd/photojournal/pia/pia26/pia26276/PIA26276.tif",
		Credit: "NASA/JPL-Caltech",
	},
	{
		Title:  "Hi-Res Moon Mosaic",
		URL:    "https://svs.gsfc.nasa.gov/vis/a000000/a004700/a004720/lroc_color_poles_2k.tif",
		Credit: "NASA's Scientific Visualization Studio",
	},
	{
		Title:  "Whirlpool Galaxy",
		URL:    "https://esahubble.org/media/archives/images/original/heic0506a.tif",
		Credit: "NASA, ESA, S. Beckwith (STScI), and The Hubble Heritage Team (STScI/AURA)",
	},
	{
		Title:  "Sombrero Galaxy",
		URL:    "https://esahubble.org/media/archives/images/original/opo0328a.tif",
		Credit: "NASA and The Hubble Heritage Team (STScI/AURA)",
	},
	{
		Title:  "Saturn and Mars",
		URL:    "https://esahubble.org/media/archives/images/original/heic1814a.tif",
		Credit: "NASA, ESA, A. Simon (GSFC) and M.H. Wong (University of California, Berkeley)",
	},
}

func FeaturedImages() []Featured {
	return append([]Featured(nil), featured...)
}

func FeaturedByURL(u string) (Featured, bool) {
	for _, f := range featured {
		if f.URL == u {
			return f, true
		}
	}
	return Featured{}, false
}

// DefaultImageURL is what the large-image view opens first.
func DefaultImageURL() string {
	return featured[0].URL
}
