package sink

import (
	"fmt"

	"github.com/joho/godotenv"
)

// Credentials for HTTP basic auth. The zero value means no auth header.
type Credentials struct {
	User     string
	Password string
}

// Empty reports whether no user was configured.
func (c Credentials) Empty() bool { return c.User == "" }

// LoadCredentials resolves credentials. An explicit user from the command
// line wins; otherwise the optional file is read as KEY=value lines and its
// "user" and "password" keys are used. Missing keys leave the fields empty.
func LoadCredentials(user, password, file string) (Credentials, error) {
	if user != "" {
		return Credentials{User: user, Password: password}, nil
	}
	if file == "" {
		return Credentials{}, nil
	}

	env, err := godotenv.Read(file)
	if err != nil {
		return Credentials{}, fmt.Errorf("read credentials file %s: %w", file, err)
	}
	c := Credentials{User: env["user"], Password: env["password"]}
	if password != "" {
		c.Password = password
	}
	return c, nil
}
