package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	goSession "github.com/moneysab/goSession"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type whoami struct {
	State       string          `json:"state"`
	User        *goSession.User `json:"user"`
	Roles       []string        `json:"roles"`
	Permissions []string        `json:"permissions"`
	ExpiresIn   int64           `json:"expiresInSeconds"`
}

func printWhoami(w io.Writer, v whoami) {
	name := strings.TrimSpace(v.User.FirstName + " " + v.User.LastName)
	if name == "" {
		name = v.User.Username
	}
	fmt.Fprintf(w, "%s <%s>\n", name, v.User.Email)
	fmt.Fprintf(w, "state:       %s\n", v.State)
	fmt.Fprintf(w, "roles:       %s\n", strings.Join(v.Roles, ", "))
	fmt.Fprintf(w, "permissions: %d\n", len(v.Permissions))
	fmt.Fprintf(w, "expires in:  %ds\n", v.ExpiresIn)
}
