package zclone

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/gobuffalo/flect"
	"github.com/google/shlex"
	"github.com/sirupsen/logrus"
)

var splitOptionsRe = regexp.MustCompile(`(?:[^\\]|^)(?:\\\\)*,`)

type KeyValuePair = [2]string

// Parsed and evaluated options, selecting the commands run and how
type Options struct {
	// All normal (non-"@"-prefixed) options
	String map[string]string

	// All "@"-prefixed options, which can be given several times
	// Keys have their "@" prefix stripped
	StrSlice map[string][]string
}

func NewOptions() *Options {
	return &Options{
		String:   make(map[string]string),
		StrSlice: make(map[string][]string),
	}
}

func (o *Options) merge() map[string]interface{} {
	res := make(map[string]interface{})
	for k, v := range o.String {
		res[k] = v
	}
	for k, v := range o.StrSlice {
		res["@"+k] = v
	}
	return res
}

// Get a command, for *Command options.
// Either a list (@SendCommand=sudo,@SendCommand=zfs) or a simple string following shell syntax
// (ZfsCommand=sudo zfs)
func (o *Options) GetCommand(key string, defaults []string) []string {
	if ss, ok := o.StrSlice[key]; ok {
		return ss
	}

	if s, ok := o.String[key]; ok {
		res, err := shlex.Split(s)
		if err != nil {
			logrus.Warnf("cannot parse %s: %s", key, err)
		} else if len(res) > 0 {
			return res
		}
	}

	return defaults
}

func (o *Options) GetBoolean(key string, defaults bool) (bool, error) {
	if s, ok := o.String[key]; ok {
		switch strings.ToLower(s) {
		case "1", "true", "yes":
			return true, nil
		case "0", "false", "no":
			return false, nil
		default:
			return false, fmt.Errorf("invalid boolean for %s: %s", key, s)
		}
	}

	return defaults, nil
}

func (o *Options) GetString(key string, defaults string) string {
	if s, ok := o.String[key]; ok {
		return s
	}
	return defaults
}

// Canonical form of an option key: pascalized, keeping the "@" prefix
func optionKey(k string) string {
	var prefix string
	k = strings.TrimSpace(k)
	if len(k) > 0 && k[0] == '@' {
		prefix = string(k[0])
		k = k[1:]
	}
	if k == "" {
		return ""
	}
	return prefix + flect.Pascalize(k)
}

func parseOption(option string) (string, string) {
	s := strings.SplitN(strings.ReplaceAll(strings.ReplaceAll(option, "\\,", ","), "\\\\", "\\"), "=", 2)

	k := optionKey(s[0])
	if k == "" {
		return "", ""
	}

	if len(s) == 1 {
		return k, "true"
	}
	return k, s[1]
}

// Split an option line into a list of key-value pairs, separated by a comma
func SplitOptions(options string) []KeyValuePair {
	result := make([]KeyValuePair, 0)
	indices := splitOptionsRe.FindAllStringIndex(options, -1)

	prevPos := 0
	for _, idx := range indices {
		pos := idx[1]
		k, v := parseOption(options[prevPos : pos-1])
		if k != "" {
			result = append(result, KeyValuePair{k, v})
		}
		prevPos = pos
	}

	k, v := parseOption(options[prevPos:])
	if k != "" {
		result = append(result, KeyValuePair{k, v})
	}

	return result
}

func evalOptions(result *Options, kvs []KeyValuePair, presets map[string][]KeyValuePair, depth int) error {
	if depth > len(presets)+1 {
		return fmt.Errorf("presets recursion too deep")
	}

	for _, kv := range kvs {
		k, v := kv[0], kv[1]

		tpl, err := template.New(k).Funcs(sprig.TxtFuncMap()).Parse(v)
		if err != nil {
			logrus.Warnf("failed to evaluate %v: %v", k, err)
		} else {
			buf := bytes.NewBuffer(nil)
			err = tpl.Execute(buf, result.merge())
			if err != nil {
				logrus.Warnf("failed to evaluate %v: %v", k, err)
			} else {
				v = buf.String()
			}
		}

		if k == "Preset" {
			presetOptions, ok := presets[v]
			if !ok {
				return fmt.Errorf("preset %s not found", v)
			}
			err := evalOptions(result, presetOptions, presets, depth+1)
			if err != nil {
				return err
			}
		} else if len(k) > 0 && k[0] == '@' {
			result.StrSlice[k[1:]] = append(result.StrSlice[k[1:]], v)
		} else {
			result.String[k] = v
		}
	}
	return nil
}

// Evaluate raw key-value pairs: values are templates over the options evaluated so far, and
// Preset=<name> pulls the options of a preset in place
func EvalOptions(kvs []KeyValuePair, presets map[string][]KeyValuePair) (*Options, error) {
	options := NewOptions()
	err := evalOptions(options, kvs, presets, 0)
	if err != nil {
		return nil, err
	}

	return options, nil
}
