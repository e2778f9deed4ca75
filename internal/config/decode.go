package config

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/mitchellh/mapstructure"

	"github.com/cuenv/cuenv/internal/errs"
)

// Decode turns the external parser's loosely-typed output (as produced by
// unmarshalling its JSON/CUE-evaluated form into map[string]interface{})
// into a ParseResult, same decode-arbitrary-data-into-a-struct approach as
// the teacher's internal/analytics addSessionID.
func Decode(raw map[string]interface{}) (ParseResult, error) {
	var result ParseResult
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &result,
		WeaklyTypedInput: true,
		DecodeHook:       taskNodeHookFunc,
	})
	if err != nil {
		return ParseResult{}, errs.Configurationf("config.Decode", "parse_result", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return ParseResult{}, errs.Configurationf("config.Decode", "parse_result", err)
	}
	return result, nil
}

// taskNodeHookFunc recognises the parser's task-node shape and builds the
// leaf/group union TaskNode represents: a map with a "mode" key is a
// group (its "children" is itself a map of name -> raw node, decoded
// recursively); anything else decodes as a leaf TaskConfig.
func taskNodeHookFunc(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if to != reflect.TypeOf(TaskNode{}) {
		return data, nil
	}
	raw, ok := data.(map[string]interface{})
	if !ok {
		return data, nil
	}

	modeRaw, hasMode := raw["mode"]
	if !hasMode {
		var task TaskConfig
		if err := mapstructure.Decode(raw, &task); err != nil {
			return nil, err
		}
		return TaskNode{Task: &task}, nil
	}

	mode, ok := modeRaw.(string)
	if !ok {
		return nil, fmt.Errorf("config: task node \"mode\" must be a string, got %T", modeRaw)
	}

	childrenRaw, _ := raw["children"].(map[string]interface{})
	names := make([]string, 0, len(childrenRaw))
	for name := range childrenRaw {
		names = append(names, name)
	}
	sort.Strings(names)

	children := make([]NamedTaskNode, 0, len(names))
	for _, name := range names {
		childMap, ok := childrenRaw[name].(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("config: group child %q must be an object", name)
		}
		decoded, err := taskNodeHookFunc(reflect.TypeOf(childMap), to, childMap)
		if err != nil {
			return nil, err
		}
		children = append(children, NamedTaskNode{Name: name, Node: decoded.(TaskNode)})
	}

	return TaskNode{
		GroupMode: GroupMode(mode),
		Children:  children,
	}, nil
}
