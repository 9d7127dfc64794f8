package controller

import "flag"

// Config holds the controller's CLI-derived startup parameters (spec
// §9 CLI surface, controller).
type Config struct {
	HTTPPort  int
	HTTPSPort int
	EnableHTTP  bool
	EnableHTTPS bool

	APIKey     string
	StaticPath string

	DisableDiscovery bool
	DetectOthers     bool

	TLSCertPath string
	TLSKeyPath  string
	GenerateCert bool

	Verbose    bool
	ScriptPath string
}

// ParseConfig parses the controller CLI flags from args (excluding
// argv[0]).
func ParseConfig(args []string) (*Config, error) {
	fs := flag.NewFlagSet("mxd", flag.ContinueOnError)

	cfg := &Config{}
	fs.IntVar(&cfg.HTTPPort, "http-port", 8080, "HTTP listen port")
	fs.IntVar(&cfg.HTTPSPort, "https-port", 8443, "HTTPS listen port")
	fs.BoolVar(&cfg.EnableHTTP, "http", true, "enable the plain HTTP listener")
	fs.BoolVar(&cfg.EnableHTTPS, "https", false, "enable the HTTPS listener")
	fs.StringVar(&cfg.APIKey, "apikey", "", "bearer apikey required on /api; empty disables auth")
	fs.StringVar(&cfg.StaticPath, "static-path", "", "directory served under /static")
	fs.BoolVar(&cfg.DisableDiscovery, "disable-discovery", false, "do not run the UDP discovery responder")
	fs.BoolVar(&cfg.DetectOthers, "detect-others", false, "probe the network for other controllers on startup")
	fs.StringVar(&cfg.TLSCertPath, "tls-cert", "/var/lib/mxfleet/controller.crt", "TLS certificate PEM path")
	fs.StringVar(&cfg.TLSKeyPath, "tls-key", "/var/lib/mxfleet/controller.key", "TLS private key PEM path")
	fs.BoolVar(&cfg.GenerateCert, "generate-cert", false, "generate a self-signed cert/key at the TLS paths and exit")
	fs.BoolVar(&cfg.Verbose, "verbose", false, "enable debug logging")
	fs.StringVar(&cfg.ScriptPath, "script", "", "path to a startup script; stored in Config.ScriptPath, the server does not read or run it")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return cfg, nil
}
