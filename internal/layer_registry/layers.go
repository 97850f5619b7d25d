package layer_registry

const (
	gibsCredit = "NASA GIBS"
	lrocCredit = "LRO WAC - NASA/GSFC/Arizona State University"

	gibsBase = "https://gibs.earthdata.nasa.gov/wmts/epsg3857/best/"
	lrocURL  = "https://wms.lroc.asu.edu/lroc/view?REQUEST=GetTile&SERVICE=WMTS&VERSION=1.0.0&LAYER={Layer}&STYLE=default&TILEMATRIXSET={TileMatrixSet}&TILEMATRIX={TileMatrix}&TILEROW={TileRow}&TILECOL={TileCol}&FORMAT=image/jpeg"
)

func gibsURL(layer, ext string) string {
	return gibsBase + layer + "/default/{Time}/{TileMatrixSet}/{TileMatrix}/{TileRow}/{TileCol}." + ext
}

func lroc(key, name, description string) LayerConfig {
	return LayerConfig{
		Key:         key,
		URL:         lrocURL,
		Matrix:      "GoogleMapsCompatible",
		Layer:       key,
		Name:        name,
		Format:      "image/jpeg",
		MaxLevel:    7,
		Description: description,
		Temporal:    Static,
		Planet:      Moon,
		Credit:      lrocCredit,
		Group:       "Static Views - No Time Component",
	}
}

// builtinLayers is ordered the way the layer picker lists them.
var builtinLayers = []LayerConfig{
	{
		Key:         "goes_east_geocolor",
		URL:         gibsURL("GOES-East_ABI_GeoColor", "png"),
		Matrix:      "GoogleMapsCompatible_Level7",
		Layer:       "GOES-East_ABI_GeoColor",
		Name:        "GOES-East GeoColor (10min)",
		Format:      "image/png",
		MaxLevel:    9,
		Description: "10-minute updates! Americas & Atlantic view",
		Temporal:    TenMinute,
		Planet:      Earth,
		Credit:      gibsCredit,
		Group:       "LIVE - 10 Minute Updates",
	},
	{
		Key:         "goes_west_geocolor",
		URL:         gibsURL("GOES-West_ABI_GeoColor", "png"),
		Matrix:      "GoogleMapsCompatible_Level7",
		Layer:       "GOES-West_ABI_GeoColor",
		Name:        "GOES-West GeoColor (10min)",
		Format:      "image/png",
		MaxLevel:    9,
		Description: "10-minute updates! Pacific & Americas view",
		Temporal:    TenMinute,
		Planet:      Earth,
		Credit:      gibsCredit,
		Group:       "LIVE - 10 Minute Updates",
	},
	{
		Key:         "modis_terra",
		URL:         gibsURL("MODIS_Terra_CorrectedReflectance_TrueColor", "jpg"),
		Matrix:      "GoogleMapsCompatible_Level9",
		Layer:       "MODIS_Terra_CorrectedReflectance_TrueColor",
		Name:        "MODIS Terra True Color",
		Format:      "image/jpeg",
		MaxLevel:    9,
		Description: "Daily true color imagery (updated within 3 hours)",
		Temporal:    Daily,
		Planet:      Earth,
		Credit:      gibsCredit,
		Group:       "True Color Imagery",
	},
	{
		Key:         "modis_aqua",
		URL:         gibsURL("MODIS_Aqua_CorrectedReflectance_TrueColor", "jpg"),
		Matrix:      "GoogleMapsCompatible_Level9",
		Layer:       "MODIS_Aqua_CorrectedReflectance_TrueColor",
		Name:        "MODIS Aqua True Color",
		Format:      "image/jpeg",
		MaxLevel:    9,
		Description: "Daily true color imagery from Aqua satellite",
		Temporal:    Daily,
		Planet:      Earth,
		Credit:      gibsCredit,
		Group:       "True Color Imagery",
	},
	{
		Key:         "viirs_snpp",
		URL:         gibsURL("VIIRS_SNPP_CorrectedReflectance_TrueColor", "jpg"),
		Matrix:      "GoogleMapsCompatible_Level9",
		Layer:       "VIIRS_SNPP_CorrectedReflectance_TrueColor",
		Name:        "VIIRS True Color (High Res)",
		Format:      "image/jpeg",
		MaxLevel:    9,
		Description: "High resolution daily imagery (375m resolution)",
		Temporal:    Daily,
		Planet:      Earth,
		Credit:      gibsCredit,
		Group:       "True Color Imagery",
	},
	{
		Key:         "snow_cover",
		URL:         gibsURL("MODIS_Terra_L3_Snow_Extent_8Day", "png"),
		Matrix:      "GoogleMapsCompatible_Level8",
		Layer:       "MODIS_Terra_L3_Snow_Extent_8Day",
		Name:        "Snow Cover (8-Day)",
		Format:      "image/png",
		MaxLevel:    8,
		Description: "8-day composite snow extent",
		Temporal:    Daily,
		Planet:      Earth,
		Credit:      gibsCredit,
		Group:       "Snow & Ice",
	},
	{
		Key:         "land_temp_day",
		URL:         gibsURL("MODIS_Terra_Land_Surface_Temp_Day", "png"),
		Matrix:      "GoogleMapsCompatible_Level7",
		Layer:       "MODIS_Terra_Land_Surface_Temp_Day",
		Name:        "Land Surface Temperature (Day)",
		Format:      "image/png",
		MaxLevel:    7,
		Description: "Daily land surface temperature",
		Temporal:    Daily,
		Planet:      Earth,
		Credit:      gibsCredit,
		Group:       "Temperature",
	},
	{
		Key:         "fires",
		URL:         gibsURL("MODIS_Terra_Thermal_Anomalies_All", "png"),
		Matrix:      "GoogleMapsCompatible_Level9",
		Layer:       "MODIS_Terra_Thermal_Anomalies_All",
		Name:        "Active Fires",
		Format:      "image/png",
		MaxLevel:    9,
		Description: "Active fire detections",
		Temporal:    Daily,
		Planet:      Earth,
		Credit:      gibsCredit,
		Group:       "Fires & Hazards",
	},
	{
		Key:         "cloud_fraction",
		URL:         gibsURL("MODIS_Terra_Cloud_Fraction_Day", "png"),
		Matrix:      "GoogleMapsCompatible_Level6",
		Layer:       "MODIS_Terra_Cloud_Fraction_Day",
		Name:        "Cloud Fraction",
		Format:      "image/png",
		MaxLevel:    6,
		Description: "Daily cloud coverage",
		Temporal:    Daily,
		Planet:      Earth,
		Credit:      gibsCredit,
		Group:       "Weather",
	},
	{
		Key:         "ndvi",
		URL:         gibsURL("MODIS_Terra_NDVI_8Day", "png"),
		Matrix:      "GoogleMapsCompatible_Level7",
		Layer:       "MODIS_Terra_NDVI_8Day",
		Name:        "Vegetation Index (NDVI)",
		Format:      "image/png",
		MaxLevel:    7,
		Description: "8-day vegetation health index",
		Temporal:    Daily,
		Planet:      Earth,
		Credit:      gibsCredit,
		Group:       "Vegetation",
	},
	lroc("lro_wac_global", "Global mosaic", "Global mosaic compiled from entire mission"),
	lroc("lro_wac_color", "Color composite", "Color composite - fixed dataset"),
	lroc("lro_lola_elevation", "Elevation map", "Elevation map - doesn't change"),
}
