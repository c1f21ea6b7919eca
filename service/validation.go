package service

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/common"
)

const MaxNameLength = 128

var (
	ErrInvalidName    = errors.New("invalid name")
	ErrInvalidAddress = errors.New("invalid address")
)

// Validator checks user supplied names and addresses before they reach the
// election.
type Validator struct {
	maxNameLength int
}

func NewValidator() *Validator {
	return &Validator{maxNameLength: MaxNameLength}
}

// Name returns the trimmed name.
func (v *Validator) Name(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: name is required", ErrInvalidName)
	}
	if n := utf8.RuneCountInString(name); n > v.maxNameLength {
		return "", fmt.Errorf("%w: %d characters, at most %d allowed", ErrInvalidName, n, v.maxNameLength)
	}
	return name, nil
}

func (v *Validator) Address(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return common.HexToAddress(s), nil
}
