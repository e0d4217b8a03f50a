package config

const (
	// LayoutShared keeps fixed artifact directories and resets them every run.
	LayoutShared = "shared"
	// LayoutRunScoped writes every run into runs/<run-id>.
	LayoutRunScoped = "run_scoped"

	// AreaModeSum adds box areas without accounting for overlap.
	AreaModeSum = "sum"
	// AreaModeUnion measures the union of all boxes.
	AreaModeUnion = "union"
)

const (
	defaultInputFile           = "inputs/input.xlsx"
	defaultOutputRoot          = "."
	defaultStateDir            = "~/.local/share/solarverify"
	defaultLogDir              = "~/.local/share/solarverify/logs"
	defaultCertificateTemplate = "certificates/cert_temp.txt"
	defaultImageBaseURL        = "https://maps.googleapis.com/maps/api/staticmap"
	defaultImageZoom           = 20
	defaultImageSize           = 640
	defaultImageMapType        = "satellite"
	defaultImageSourceName     = "Google Static Maps"
	defaultOracleURL           = "http://localhost:5000/predict"
	defaultOracleTimeout       = 120
	defaultWorkers             = 1
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			InputFile:           defaultInputFile,
			OutputRoot:          defaultOutputRoot,
			StateDir:            defaultStateDir,
			LogDir:              defaultLogDir,
			CertificateTemplate: defaultCertificateTemplate,
		},
		Output: Output{
			Layout: LayoutShared,
		},
		ImageService: ImageService{
			BaseURL:    defaultImageBaseURL,
			Zoom:       defaultImageZoom,
			Width:      defaultImageSize,
			Height:     defaultImageSize,
			MapType:    defaultImageMapType,
			SourceName: defaultImageSourceName,
		},
		Oracle: Oracle{
			URL:            defaultOracleURL,
			TimeoutSeconds: defaultOracleTimeout,
			HealthCheck:    true,
		},
		Metrics: Metrics{
			AreaMode: AreaModeSum,
		},
		Pipeline: Pipeline{
			Workers: defaultWorkers,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
