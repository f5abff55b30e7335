package cmd

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configForce bool

// configDirFunc returns the config directory path, replaceable in tests.
var configDirFunc = defaultConfigDir

func defaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "campusreport"), nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage campusreport configuration.

Running bare 'campusreport config' is the same as 'campusreport config show'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config file with commented defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configInitRun()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration with sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open config file in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configEditRun()
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	rootCmd.AddCommand(configCmd)
}

// configTemplate is the template for generating config.yaml with comments.
const configTemplate = `# campusreport configuration
# See: campusreport config show (for effective values and sources)

# State/data directory (default: ~/.config/campusreport)
# state_dir: {{ .StateDir }}

# SQLite database path (default: ~/.config/campusreport/campusreport.db)
# db_path: {{ .DBPath }}

# Port for 'campusreport serve'
port: {{ .Port }}

campus:
  # Shown as page title and in the resolution email
  name: "{{ .CampusName }}"
  # Signature of notification emails
  team: "{{ .CampusTeam }}"
  # Submitters need an address on this domain or its student. subdomain
  email_domain: "{{ .EmailDomain }}"
  # IANA time zone for submission timestamps
  timezone: "{{ .Timezone }}"
  # Campus map linked from the submission form (empty hides the link)
  map_url: "{{ .MapURL }}"

# Outgoing mail. When disabled, notifications are only logged.
smtp:
  enabled: {{ .SMTPEnabled }}
  host: "{{ .SMTPHost }}"
  port: {{ .SMTPPort }}
  username: "{{ .SMTPUsername }}"
  # Prefer CAMPUSREPORT_SMTP_PASSWORD over storing the password here
  password: ""
  # Sender address (default: username)
  from: "{{ .SMTPFrom }}"

auth:
  # How long a facility login stays valid
  session_ttl: "{{ .SessionTTL }}"

# Used by 'campusreport issue classify --llm'
anthropic:
  # Prefer ANTHROPIC_API_KEY over storing the key here
  api_key: ""
  model: "{{ .AnthropicModel }}"
`

type configTemplateData struct {
	StateDir       string
	DBPath         string
	Port           int
	CampusName     string
	CampusTeam     string
	EmailDomain    string
	Timezone       string
	MapURL         string
	SMTPEnabled    bool
	SMTPHost       string
	SMTPPort       int
	SMTPUsername   string
	SMTPFrom       string
	SessionTTL     string
	AnthropicModel string
}

func configFilePath() (string, error) {
	dir, err := configDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func configInitRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if file already exists
	if _, err := os.Stat(cfgPath); err == nil {
		if !configForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", cfgPath)
		}
		ui.Warning("Overwriting existing config file")
	}

	// Build template data from current viper values
	data := configTemplateData{
		StateDir:       viper.GetString("state_dir"),
		DBPath:         viper.GetString("db_path"),
		Port:           viper.GetInt("port"),
		CampusName:     viper.GetString("campus.name"),
		CampusTeam:     viper.GetString("campus.team"),
		EmailDomain:    viper.GetString("campus.email_domain"),
		Timezone:       viper.GetString("campus.timezone"),
		MapURL:         viper.GetString("campus.map_url"),
		SMTPEnabled:    viper.GetBool("smtp.enabled"),
		SMTPHost:       viper.GetString("smtp.host"),
		SMTPPort:       viper.GetInt("smtp.port"),
		SMTPUsername:   viper.GetString("smtp.username"),
		SMTPFrom:       viper.GetString("smtp.from"),
		SessionTTL:     viper.GetString("auth.session_ttl"),
		AnthropicModel: viper.GetString("anthropic.model"),
	}

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("template parse error: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("template execute error: %w", err)
	}

	if dryRun {
		ui.DryRunMsg("Would create config file: %s", cfgPath)
		fmt.Fprintln(ui.Out)
		fmt.Fprint(ui.Out, buf.String())
		return nil
	}

	// Create config directory
	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(cfgPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	ui.Success("Config file created: %s", cfgPath)
	fmt.Fprintln(ui.Out)
	fmt.Fprint(ui.Out, buf.String())
	return nil
}

// configKeyInfo describes a config key for display purposes.
type configKeyInfo struct {
	Key    string
	Secret bool
}

// EnvVar returns the environment variable that overrides the key.
func (k configKeyInfo) EnvVar() string {
	return "CAMPUSREPORT_" + strings.ToUpper(strings.ReplaceAll(k.Key, ".", "_"))
}

var configKeys = []configKeyInfo{
	{Key: "state_dir"},
	{Key: "db_path"},
	{Key: "port"},
	{Key: "campus.name"},
	{Key: "campus.team"},
	{Key: "campus.email_domain"},
	{Key: "campus.timezone"},
	{Key: "campus.map_url"},
	{Key: "smtp.enabled"},
	{Key: "smtp.host"},
	{Key: "smtp.port"},
	{Key: "smtp.username"},
	{Key: "smtp.password", Secret: true},
	{Key: "smtp.from"},
	{Key: "auth.session_ttl"},
	{Key: "anthropic.api_key", Secret: true},
	{Key: "anthropic.model"},
}

// maskSecret hides all but the last four characters of a secret value.
func maskSecret(v string) string {
	if v == "" {
		return ""
	}
	if len(v) <= 4 {
		return "****"
	}
	return "****" + v[len(v)-4:]
}

func configShowRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if config file exists
	if _, err := os.Stat(cfgPath); err == nil {
		ui.Info("Config file: %s", cfgPath)
	} else {
		ui.Info("Config file: (none)")
	}
	fmt.Fprintln(ui.Out)

	// Read config file values to determine file source
	fileValues := readConfigFileValues(cfgPath)

	for _, k := range configKeys {
		val := viper.Get(k.Key)
		if k.Secret {
			val = maskSecret(viper.GetString(k.Key))
		}
		source := detectSource(k.Key, k.EnvVar(), fileValues)
		fmt.Fprintf(ui.Out, "  %-22s %v  %s\n", k.Key, val, source)
	}

	return nil
}

// readConfigFileValues reads the raw YAML file and returns a flat map of keys present in it.
func readConfigFileValues(path string) map[string]bool {
	result := make(map[string]bool)

	data, err := os.ReadFile(path)
	if err != nil {
		return result
	}

	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return result
	}

	// Flatten nested keys with dot notation
	flattenKeys("", parsed, result)
	return result
}

// flattenKeys recursively flattens a nested map to dot-notation keys.
func flattenKeys(prefix string, m map[string]any, result map[string]bool) {
	for key, val := range m {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			flattenKeys(fullKey, nested, result)
		} else {
			result[fullKey] = true
		}
	}
}

// detectSource determines where a config value is coming from.
func detectSource(key, envVar string, fileValues map[string]bool) string {
	if _, ok := os.LookupEnv(envVar); ok {
		return fmt.Sprintf("(env: %s)", envVar)
	}
	if fileValues[key] {
		return "(file)"
	}
	return "(default)"
}

func configEditRun() error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		return fmt.Errorf("$EDITOR is not set (e.g. export EDITOR=vim)")
	}

	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s (run 'campusreport config init' first)", cfgPath)
	}

	if dryRun {
		ui.DryRunMsg("Would open %s in %s", cfgPath, editor)
		return nil
	}

	editCmd := exec.Command(editor, cfgPath)
	editCmd.Stdin = os.Stdin
	editCmd.Stdout = os.Stdout
	editCmd.Stderr = os.Stderr
	return editCmd.Run()
}
