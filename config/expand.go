package config

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"text/template"
)

// expand renders value as a template with "env" and "exec" functions, so
// secrets can come from the environment or a password manager.
func expand(value string, getenv func(string) string) (string, error) {
	if !strings.Contains(value, "{{") {
		return value, nil
	}

	tmpl, err := template.New("expand_variables").
		Funcs(template.FuncMap{
			"env": getenv,
			"exec": func(line string) (string, error) {
				if strings.Contains(line, " | ") {
					out, err := exec.Command("sh", "-c", line).Output()
					return strings.TrimSpace(string(out)), err
				}

				l := strings.Fields(line)
				if len(l) < 1 {
					return "", errors.New("no command provided")
				}
				cmd := l[0]
				args := l[1:]

				out, err := exec.Command(cmd, args...).Output()
				return strings.TrimSpace(string(out)), err
			},
		}).
		Parse(value)
	if err != nil {
		return "", err
	}

	var out bytes.Buffer
	err = tmpl.Execute(&out, nil)
	if err != nil {
		return "", err
	}

	return out.String(), nil
}

// expandAll expands every templated string field of the config in place.
func (c *Config) expandAll(getenv func(string) string) error {
	fields := map[string]*string{
		"account":                &c.Account,
		"user":                   &c.User,
		"password":               &c.Credentials.Password,
		"private_key":            &c.Credentials.PrivateKey,
		"private_key_path":       &c.Credentials.PrivateKeyPath,
		"private_key_passphrase": &c.Credentials.PrivateKeyPassphrase,
		"authenticator":          &c.Credentials.Authenticator,
		"warehouse":              &c.Defaults.Warehouse,
		"database":               &c.Defaults.Database,
		"schema":                 &c.Defaults.Schema,
		"role":                   &c.Defaults.Role,
		"query_tag":              &c.QueryTag,
		"audit_file":             &c.AuditFile,
	}

	for name, field := range fields {
		ex, err := expand(*field, getenv)
		if err != nil {
			return fmt.Errorf("expanding %s: %w", name, err)
		}
		*field = ex
	}

	return nil
}
