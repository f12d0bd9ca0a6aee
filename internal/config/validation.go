package config

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ValidationResult holds validation errors and warnings
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// ValidationError represents a validation issue
type ValidationError struct {
	Path    string
	Message string
}

// IsValid returns true if there are no errors
func (v *ValidationResult) IsValid() bool {
	return len(v.Errors) == 0
}

func (v *ValidationResult) addError(path, format string, args ...any) {
	v.Errors = append(v.Errors, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (v *ValidationResult) addWarning(path, format string, args ...any) {
	v.Warnings = append(v.Warnings, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

// ValidateFile validates a config file structure without requiring env vars
func ValidateFile(path string) (*ValidationResult, error) {
	data, err := readConfigFile(path)
	if err != nil {
		return nil, err
	}
	return ValidateData(data), nil
}

// ValidateData validates JSON config data without resolving env vars
func ValidateData(data []byte) *ValidationResult {
	result := &ValidationResult{}

	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		result.addError("", "invalid JSON: %v", err)
		return result
	}

	checkBashStyleSyntax(rawConfig, "", result)

	version, ok := rawConfig["version"].(string)
	if !ok {
		result.addError("version", "version field is required. Hint: Add \"version\": \"v1\"")
	} else if !strings.HasPrefix(version, SupportedVersionPrefix) {
		result.addError("version", "unsupported version '%s' - use '%s'", version, SupportedVersionPrefix)
	}

	validateSiteStructure(rawConfig, result)
	validateTwitterStructure(rawConfig, result)
	mainSite := validateBrokerStructure(rawConfig, result)
	validateStorageStructure(rawConfig, result)
	validateSessionStructure(rawConfig, result)

	if err := validateRawConfig(rawConfig); err != nil {
		result.addError("", "%v", err)
	}

	if !mainSite {
		result.addWarning("broker.mainSite", "mainSite is false: this instance runs as a satellite and never calls the provider's refresh endpoint")
	}

	return result
}

func section(rawConfig map[string]any, name string, result *ValidationResult, required bool) (map[string]any, bool) {
	s, ok := rawConfig[name].(map[string]any)
	if !ok && required {
		result.addError(name, "%s field is required and must be an object", name)
	}
	return s, ok
}

func validateSiteStructure(rawConfig map[string]any, result *ValidationResult) {
	site, ok := section(rawConfig, "site", result, true)
	if !ok {
		return
	}
	if _, ok := site["baseURL"]; !ok {
		result.addError("site.baseURL", "baseURL is required. Example: \"https://site.example\"")
	} else if s, isString := site["baseURL"].(string); isString {
		if !strings.HasPrefix(s, "https://") && !strings.HasPrefix(s, "http://") {
			result.addError("site.baseURL", "baseURL must be an absolute http(s) URL")
		} else if strings.HasPrefix(s, "http://") {
			result.addWarning("site.baseURL", "baseURL is not https; the provider rejects non-https redirect URIs outside development")
		}
	}
	if _, ok := site["addr"]; !ok {
		result.addError("site.addr", "addr is required. Example: \":8080\" or \"0.0.0.0:8080\"")
	}
}

func validateTwitterStructure(rawConfig map[string]any, result *ValidationResult) {
	twitter, ok := section(rawConfig, "twitter", result, true)
	if !ok {
		return
	}
	if _, ok := twitter["clientId"]; !ok {
		result.addError("twitter.clientId", "clientId is required")
	}
	if raw, ok := twitter["timeout"]; ok {
		validateDurationField(raw, "twitter.timeout", result)
	}
	if scopes, ok := twitter["scopes"].([]any); ok {
		hasOffline := false
		for _, s := range scopes {
			if s == "offline.access" {
				hasOffline = true
			}
		}
		if !hasOffline {
			result.addWarning("twitter.scopes", "scopes without offline.access yield no refresh token; publishing stops when the access token expires")
		}
	}
	if v, ok := twitter["insecureSkipVerify"].(bool); ok && v {
		result.addWarning("twitter.insecureSkipVerify", "insecureSkipVerify is only honoured in development mode")
	}
}

func validateBrokerStructure(rawConfig map[string]any, result *ValidationResult) bool {
	// A missing section loads as a satellite with no remote
	broker, _ := section(rawConfig, "broker", result, false)
	mainSite, _ := broker["mainSite"].(bool)
	if !mainSite {
		if _, ok := broker["remoteEndpoint"]; !ok {
			result.addError("broker.remoteEndpoint", "remoteEndpoint is required for a satellite site")
		}
		if _, ok := broker["remoteToken"]; !ok {
			result.addError("broker.remoteToken", "remoteToken is required for a satellite site")
		}
	}
	if raw, ok := broker["syncInterval"]; ok {
		validateDurationField(raw, "broker.syncInterval", result)
	}
	return mainSite
}

func validateStorageStructure(rawConfig map[string]any, result *ValidationResult) {
	storage, ok := section(rawConfig, "storage", result, false)
	if !ok {
		return
	}
	kind, _ := storage["kind"].(string)
	switch StorageKind(kind) {
	case "", StorageKindMemory:
		result.addWarning("storage.kind", "memory storage loses tokens on restart")
	case StorageKindFirestore:
		if _, ok := storage["gcpProject"]; !ok {
			result.addError("storage.gcpProject", "gcpProject is required when using firestore storage")
		}
	default:
		result.addError("storage.kind", "unknown storage kind '%s' - use 'memory' or 'firestore'", kind)
	}
}

func validateSessionStructure(rawConfig map[string]any, result *ValidationResult) {
	session, ok := section(rawConfig, "session", result, true)
	if !ok {
		return
	}
	if _, ok := session["secret"]; !ok {
		result.addError("session.secret", "secret is required. Use {\"$env\": \"SESSION_SECRET\"}")
	}
	if raw, ok := session["maxAge"]; ok {
		validateDurationField(raw, "session.maxAge", result)
	}
}

func validateDurationField(raw any, path string, result *ValidationResult) {
	s, ok := raw.(string)
	if !ok {
		result.addError(path, "must be a duration string like \"10s\" or \"30m\"")
		return
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		result.addError(path, "invalid duration '%s': %v", s, err)
		return
	}
	if d < 0 {
		result.addError(path, "cannot be negative")
	}
}

// checkBashStyleSyntax warns about $VAR / ${VAR} strings that look like env references
func checkBashStyleSyntax(value any, path string, result *ValidationResult) {
	bashStyleRegex := regexp.MustCompile(`\$\{?[A-Z_][A-Z0-9_]*\}?`)

	switch v := value.(type) {
	case string:
		for _, match := range bashStyleRegex.FindAllString(v, -1) {
			varName := strings.Trim(match, "${}")
			result.addWarning(path, "found bash-style syntax '%s' - use {\"$env\": \"%s\"} instead", match, varName)
		}
	case map[string]any:
		if _, hasEnv := v["$env"]; hasEnv {
			return
		}
		for key, val := range v {
			newPath := key
			if path != "" {
				newPath = path + "." + key
			}
			checkBashStyleSyntax(val, newPath, result)
		}
	case []any:
		for i, item := range v {
			checkBashStyleSyntax(item, fmt.Sprintf("%s[%d]", path, i), result)
		}
	}
}
