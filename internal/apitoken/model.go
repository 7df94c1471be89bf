package apitoken

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/alex65536/tourney/internal/util/idgen"
	"github.com/alex65536/tourney/internal/util/timeutil"
)

type PermKind int

const (
	PermView PermKind = iota
	PermManage
	PermAdjudicate
	PermBridge
	PermAdmin
	PermMax
)

func (k PermKind) String() string {
	switch k {
	case PermView:
		return "view"
	case PermManage:
		return "manage"
	case PermAdjudicate:
		return "adjudicate"
	case PermBridge:
		return "bridge"
	case PermAdmin:
		return "admin"
	default:
		panic("bad perm")
	}
}

func ParsePerm(s string) (PermKind, error) {
	for k := range PermMax {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown perm %q", s)
}

type Perms struct {
	CanView       bool `json:"can_view"`
	CanManage     bool `json:"can_manage"`
	CanAdjudicate bool `json:"can_adjudicate"`
	CanBridge     bool `json:"can_bridge"`
	CanAdmin      bool `json:"can_admin"`
}

func (p *Perms) GetMut(k PermKind) *bool {
	switch k {
	case PermView:
		return &p.CanView
	case PermManage:
		return &p.CanManage
	case PermAdjudicate:
		return &p.CanAdjudicate
	case PermBridge:
		return &p.CanBridge
	case PermAdmin:
		return &p.CanAdmin
	default:
		panic("bad perm to get")
	}
}

// Get reports whether the perm is granted. Admin implies every other perm.
func (p Perms) Get(k PermKind) bool {
	if p.CanAdmin {
		return true
	}
	return *p.GetMut(k)
}

func (p Perms) String() string {
	var names []string
	for k := range PermMax {
		if *p.GetMut(k) {
			names = append(names, k.String())
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ",")
}

func ParsePerms(s string) (Perms, error) {
	var p Perms
	for _, name := range strings.Split(s, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		k, err := ParsePerm(name)
		if err != nil {
			return Perms{}, err
		}
		*p.GetMut(k) = true
	}
	return p, nil
}

func AdminPerms() Perms {
	return Perms{CanAdmin: true}
}

type Token struct {
	Hash      string           `gorm:"primaryKey" json:"-"`
	ID        string           `gorm:"uniqueIndex" json:"id"`
	Name      string           `json:"name"`
	Value     string           `gorm:"-" json:"value,omitempty"`
	Perms     Perms            `gorm:"embedded" json:"perms"`
	CreatedAt timeutil.UTCTime `json:"created_at"`
}

func HashValue(val string) string {
	hash := sha256.Sum256([]byte(val))
	return base64.StdEncoding.EncodeToString(hash[:])
}

func (t *Token) GenerateNew() error {
	val, err := idgen.SecureToken()
	if err != nil {
		return fmt.Errorf("generate token: %w", err)
	}
	t.ID = idgen.ID()
	t.Value = val
	t.Hash = HashValue(val)
	return nil
}
