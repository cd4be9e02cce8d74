package cmd

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"

	"github.com/encodeous/aodv/state"
	"github.com/manifoldco/promptui"
)

func promptDefaultStr(label string, def string, validateFunc promptui.ValidateFunc) (string, error) {
	prompt := promptui.Prompt{
		Label:     label,
		Default:   def,
		AllowEdit: true,
		Validate:  validateFunc,
	}
	return prompt.Run()
}

func promptYN(prefix string, def bool) bool {
	choose := promptui.Select{
		Label:     prefix,
		Items:     []string{"Yes", "No"},
		Size:      2,
		CursorPos: 0,
	}
	if !def {
		choose.CursorPos = 1
	}
	run, _, err := choose.Run()
	if err != nil {
		return false
	}
	return run == 0
}

func validatePrefix(s string) error {
	p, err := netip.ParsePrefix(s)
	if err != nil {
		return err
	}
	return state.AddressValidator(p)
}

func promptDefaultPrefix(label string, def string) (netip.Prefix, error) {
	val, err := promptDefaultStr(label, def, validatePrefix)
	if err != nil {
		return netip.Prefix{}, err
	}
	return netip.ParsePrefix(val)
}

func safeSaveFile(path string, name string) (string, error) {
	for {
		path, err := filepath.Abs(path)
		if err != nil {
			return "", err
		}
		fmt.Printf("Where do you want to save the %s?\n", name)
		path, err = promptDefaultStr("path", path, state.PathValidator)
		if err != nil {
			return "", err
		}
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return path, nil
		}
		fmt.Printf("Warning: %s file already exists: %s, do you want to overwrite it?\n", name, path)
		if promptYN("Overwrite?", false) {
			return path, nil
		}
	}
}
