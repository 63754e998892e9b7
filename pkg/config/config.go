package config

import (
	"os"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/iancoleman/strcase"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

type Config struct {
	DatabaseBusyTimeout       time.Duration `koanf:"database_busy_timeout" json:"database_busy_timeout" default:"5s"`
	DatabaseConnectRetryCount int           `koanf:"database_connect_retry_count" json:"database_connect_retry_count" default:"5" validate:"min=0"`
	DatabaseConnectRetryDelay time.Duration `koanf:"database_connect_retry_delay" json:"database_connect_retry_delay" default:"2s"`
	DatabaseDebug             bool          `koanf:"database_debug" json:"database_debug"`
	DatabaseFilePath          string        `koanf:"database_file_path" json:"database_file_path" validate:"required"`
	DatabaseMaxRetries        int           `koanf:"database_max_retries" json:"database_max_retries" default:"5" validate:"min=0"`
	Hostname                  string        `koanf:"-" json:"hostname"`
	LockFilePath              string        `koanf:"lock_file_path" json:"lock_file_path"`
	ServerHost                string        `koanf:"server_host" json:"server_host" default:"0.0.0.0"`
	ServerPort                int           `koanf:"server_port" json:"server_port" default:"5299" validate:"min=0,max=65535"`

	// Download directories are scanned in the order given.
	DownloadDirs []string `koanf:"download_dirs" json:"download_dirs" validate:"required,min=1,dive,required"`

	EBookDir            string `koanf:"ebook_dir" json:"ebook_dir" validate:"required"`
	AudioDir            string `koanf:"audio_dir" json:"audio_dir"`
	EBookFolderTemplate string `koanf:"ebook_folder_template" json:"ebook_folder_template" default:"$Author/$Title"`
	EBookFileTemplate   string `koanf:"ebook_file_template" json:"ebook_file_template" default:"$Title - $Author"`
	AudioFolderTemplate string `koanf:"audio_folder_template" json:"audio_folder_template" default:"$Author/$Title"`
	MagFolderTemplate   string `koanf:"mag_folder_template" json:"mag_folder_template" default:"_Magazines/$Title/$IssueDate"`
	MagFileTemplate     string `koanf:"mag_file_template" json:"mag_file_template" default:"$IssueDate - $Title"`
	MagAbsolute         bool   `koanf:"mag_absolute" json:"mag_absolute"`

	EBookTypes []string `koanf:"ebook_types" json:"ebook_types" default:"[\"epub\",\"mobi\",\"azw3\",\"pdf\"]" validate:"min=1"`
	AudioTypes []string `koanf:"audio_types" json:"audio_types" default:"[\"mp3\",\"m4b\",\"m4a\",\"flac\",\"ogg\"]" validate:"min=1"`
	MagTypes   []string `koanf:"mag_types" json:"mag_types" default:"[\"pdf\",\"cbz\",\"cbr\",\"epub\"]" validate:"min=1"`

	SingleFormat      bool     `koanf:"single_format" json:"single_format"`
	BookOnly          bool     `koanf:"book_only" json:"book_only"`
	KeepOriginalFiles bool     `koanf:"keep_original_files" json:"keep_original_files"`
	KeepSeeding       bool     `koanf:"keep_seeding" json:"keep_seeding"`
	AutoAddDirs       []string `koanf:"auto_add_dirs" json:"auto_add_dirs" validate:"dive,required"`

	// ArchiveMaxEntrySize caps one extracted archive entry in bytes. Zero
	// extracts entries of any size.
	ArchiveMaxEntrySize int64 `koanf:"archive_max_entry_size" json:"archive_max_entry_size" validate:"min=0"`

	// StaleAfter of zero disables the stale sweep.
	StaleAfter        time.Duration `koanf:"stale_after" json:"stale_after" validate:"min=0"`
	MatchRatio        int           `koanf:"match_ratio" json:"match_ratio" default:"80" validate:"min=1,max=100"`
	PassInterval      time.Duration `koanf:"pass_interval" json:"pass_interval" default:"10m" validate:"min=1s"`
	WatchDownloadDirs bool          `koanf:"watch_download_dirs" json:"watch_download_dirs"`
	WatchDebounce     time.Duration `koanf:"watch_debounce" json:"watch_debounce" default:"30s"`
	LibTag            string        `koanf:"lib_tag" json:"lib_tag" default:"LL" validate:"required,alphanum"`

	FilePermissions string `koanf:"file_permissions" json:"file_permissions" default:"0644" validate:"octal_mode"`
	DirPermissions  string `koanf:"dir_permissions" json:"dir_permissions" default:"0755" validate:"octal_mode"`

	Importer ImporterConfig  `koanf:"importer" json:"importer"`
	Backends []BackendConfig `koanf:"backends" json:"backends" validate:"dive"`
	Notify   NotifyConfig    `koanf:"notify" json:"notify"`
}

type ImporterConfig struct {
	// CalibreDB is the calibredb binary. Leaving it empty disables the importer.
	CalibreDB  string        `koanf:"calibredb" json:"calibredb"`
	LibraryURL string        `koanf:"library_url" json:"library_url"`
	Username   string        `koanf:"username" json:"username"`
	Password   string        `koanf:"password" json:"-"`
	Timeout    time.Duration `koanf:"timeout" json:"timeout" default:"5m"`
}

// Backend kinds understood by the backends registry.
const (
	BackendDeluge      = "deluge"
	BackendDelugeWeb   = "deluge-web"
	BackendQBittorrent = "qbittorrent"
	BackendSABnzbd     = "sabnzbd"
	BackendDirect      = "direct"
	BackendBlackhole   = "blackhole"
)

type BackendConfig struct {
	Tag      string        `koanf:"tag" json:"tag" validate:"required"`
	Kind     string        `koanf:"kind" json:"kind" validate:"required,oneof=deluge deluge-web qbittorrent sabnzbd direct blackhole"`
	Host     string        `koanf:"host" json:"host"`
	Port     int           `koanf:"port" json:"port" validate:"min=0,max=65535"`
	URLBase  string        `koanf:"url_base" json:"url_base"`
	Username string        `koanf:"username" json:"username"`
	Password string        `koanf:"password" json:"-"`
	APIKey   string        `koanf:"api_key" json:"-"`
	UseTLS   bool          `koanf:"use_tls" json:"use_tls"`
	Timeout  time.Duration `koanf:"timeout" json:"timeout" default:"30s"`
}

type NotifyConfig struct {
	NtfyURL string `koanf:"ntfy_url" json:"ntfy_url" validate:"omitempty,url"`
	Topic   string `koanf:"topic" json:"topic" validate:"required_with=NtfyURL"`
	Token   string `koanf:"token" json:"-"`
}

const (
	environmentENV = "ENVIRONMENT"
	configFileENV  = "CONFIG_FILE"

	defaultConfigFile = "/config/bookferry.yaml"
)

// New builds the configuration from struct defaults, the YAML file named by
// CONFIG_FILE and finally environment variables, in increasing precedence.
func New() (*Config, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return nil, errors.WithStack(err)
	}

	k := koanf.New(".")

	configFile := os.Getenv(configFileENV)
	if configFile == "" {
		configFile = defaultConfigFile
	}
	if _, err := os.Stat(configFile); err == nil {
		if err := k.Load(file.Provider(configFile), yaml.Parser()); err != nil {
			return nil, errors.Wrapf(err, "failed to load config file %s", configFile)
		}
	}

	keys := topLevelKeys()
	err = k.Load(env.Provider("", ".", func(s string) string {
		key := strings.ToLower(s)
		if _, ok := keys[key]; !ok {
			return ""
		}
		return key
	}), nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	cfg := &Config{}
	err = k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
			Result:           cfg,
			TagName:          "koanf",
			WeaklyTypedInput: true,
		},
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}
	cfg.Hostname = hostname

	switch os.Getenv(environmentENV) {
	case "development", "":
		loadDevelopmentConfig(cfg)
	case "test":
		loadTestConfig(cfg)
	case "production":
		loadProductionConfig(cfg)
	}

	if err := cfg.finalize(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// NewForTest returns a valid config rooted in dir, with an in-memory database.
func NewForTest(dir string) *Config {
	cfg := &Config{
		DownloadDirs: []string{dir + "/downloads"},
		EBookDir:     dir + "/ebooks",
	}
	loadTestConfig(cfg)
	_ = defaults.Set(cfg)
	return cfg
}

func (cfg *Config) finalize() error {
	// Defaults only fill zero values, so they go after the file and env
	// layers have been applied.
	if err := defaults.Set(cfg); err != nil {
		return errors.WithStack(err)
	}
	for i := range cfg.Backends {
		if err := defaults.Set(&cfg.Backends[i]); err != nil {
			return errors.WithStack(err)
		}
	}
	cfg.EBookTypes = normalizeTypes(cfg.EBookTypes)
	cfg.AudioTypes = normalizeTypes(cfg.AudioTypes)
	cfg.MagTypes = normalizeTypes(cfg.MagTypes)
	if cfg.LockFilePath == "" && cfg.DatabaseFilePath != "" && cfg.DatabaseFilePath != ":memory:" {
		cfg.LockFilePath = cfg.DatabaseFilePath + ".lock"
	}

	return validateConfig(cfg)
}

// FileMode is the permission applied to every committed file.
func (cfg *Config) FileMode() os.FileMode {
	return parseMode(cfg.FilePermissions, 0644)
}

// DirMode is the permission applied to every created directory.
func (cfg *Config) DirMode() os.FileMode {
	return parseMode(cfg.DirPermissions, 0755)
}

// Backend returns the backend configured under tag.
func (cfg *Config) Backend(tag string) (BackendConfig, bool) {
	for _, b := range cfg.Backends {
		if b.Tag == tag {
			return b, true
		}
	}
	return BackendConfig{}, false
}

func parseMode(s string, fallback os.FileMode) os.FileMode {
	v, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return fallback
	}
	return os.FileMode(v)
}

func normalizeTypes(types []string) []string {
	out := make([]string, 0, len(types))
	seen := map[string]struct{}{}
	for _, t := range types {
		t = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(t), "."))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func validateConfig(cfg *Config) error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("koanf"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = validate.RegisterValidation("octal_mode", func(fl validator.FieldLevel) bool {
		v, err := strconv.ParseUint(fl.Field().String(), 8, 32)
		return err == nil && v <= 0777
	})

	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errors.WithStack(err)
	}

	missing := []string{}
	invalid := []string{}
	for _, fe := range verrs {
		key := strings.TrimPrefix(fe.Namespace(), "Config.")
		if fe.Tag() == "required" {
			missing = append(missing, strings.ToUpper(key)+" ("+key+")")
			continue
		}
		invalid = append(invalid, key+" failed "+fe.Tag())
	}
	sort.Strings(missing)
	sort.Strings(invalid)

	if len(missing) > 0 {
		return errors.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}
	return errors.Errorf("invalid config: %s", strings.Join(invalid, ", "))
}

// topLevelKeys lists the koanf keys that may be set from the environment.
func topLevelKeys() map[string]struct{} {
	keys := map[string]struct{}{}
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name := f.Tag.Get("koanf")
		if name == "" || name == "-" {
			name = toSnakeCase(f.Name)
		}
		// Nested structs and lists of structs only come from the file.
		if f.Type.Kind() == reflect.Struct || (f.Type.Kind() == reflect.Slice && f.Type.Elem().Kind() == reflect.Struct) {
			continue
		}
		keys[name] = struct{}{}
	}
	delete(keys, "hostname")
	return keys
}

func toSnakeCase(s string) string {
	return strcase.ToSnake(s)
}
