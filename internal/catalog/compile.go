package catalog

import (
	_ "embed"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/emmsync/internal/doc"
	"github.com/roach88/emmsync/internal/schema"
)

//go:embed policy.cue
var policySource string

// Options configures compilation.
type Options struct {
	// Locales offered by localized string fields.
	Locales []schema.Locale

	// Applications resolves per-app item schemas of the applications map.
	// Nil treats every application as unknown.
	Applications ApplicationSource
}

// Policy compiles the embedded policy catalog.
func Policy(opts Options) (*schema.Object, error) {
	return Compile("policy.cue", policySource, opts)
}

// Compile compiles catalog source into the schema of the top-level
// "policy" field, which must be of kind object.
//
// Uses the CUE SDK's Go API directly:
//
//	root, err := catalog.Compile("policy.cue", src, catalog.Options{})
//	canon, err := root.Validate(fragment)
func Compile(filename, src string, opts Options) (*schema.Object, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError("cue", err)
	}

	root := v.LookupPath(cue.ParsePath("policy"))
	if !root.Exists() {
		return nil, &CompileError{Field: "policy", Message: "policy is required", Pos: v.Pos()}
	}

	c := &compiler{opts: opts}
	node, err := c.field("policy", root)
	if err != nil {
		return nil, err
	}
	obj, ok := node.(*schema.Object)
	if !ok {
		return nil, &CompileError{Field: "policy", Message: "policy must be of kind object", Pos: root.Pos()}
	}
	return obj, nil
}

type compiler struct {
	opts Options
}

// field compiles one catalog entry.
func (c *compiler) field(path string, v cue.Value) (schema.Node, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(path, err)
	}
	kind, err := requiredString(path, v, "kind")
	if err != nil {
		return nil, err
	}
	title, err := requiredString(path, v, "title")
	if err != nil {
		return nil, err
	}
	description, _, err := optionalString(path, v, "description")
	if err != nil {
		return nil, err
	}

	switch kind {
	case "boolean":
		def, _, err := optionalBool(path, v, "default")
		if err != nil {
			return nil, err
		}
		return schema.NewBoolean(title, description, def), nil

	case "integer":
		return c.integer(path, v, title, description)

	case "duration":
		node := schema.NewDuration(title, description, 0)
		s, ok, err := optionalString(path, v, "default")
		if err != nil || !ok {
			return node, err
		}
		def, err := node.Deserialize(doc.String(s))
		if err != nil {
			return nil, &CompileError{Field: path + ".default", Message: err.Error(), Pos: v.Pos()}
		}
		return schema.NewDuration(title, description, def), nil

	case "string":
		def, _, err := optionalString(path, v, "default")
		if err != nil {
			return nil, err
		}
		return schema.NewString(title, description, def), nil

	case "constant":
		value, err := requiredString(path, v, "value")
		if err != nil {
			return nil, err
		}
		return schema.NewConstant(title, description, value), nil

	case "enum":
		return c.enum(path, v, title, description)

	case "flags":
		enum, err := c.enum(path, v, title, description)
		if err != nil {
			return nil, err
		}
		defaults, err := optionalStrings(path, v, "default")
		if err != nil {
			return nil, err
		}
		flags, err := schema.NewFlags(title, description, enum, defaults...)
		if err != nil {
			return nil, &CompileError{Field: path, Message: err.Error(), Pos: v.Pos()}
		}
		return flags, nil

	case "strings":
		distinct, ok, err := optionalBool(path, v, "distinct")
		if err != nil {
			return nil, err
		}
		item := schema.NewString(title, "", "")
		if ok && !distinct {
			return schema.NewStringList(title, description, item), nil
		}
		return schema.NewStringArray(title, description, item), nil

	case "object":
		props, err := c.fields(path, v)
		if err != nil {
			return nil, err
		}
		return schema.NewObject(title, description, props...), nil

	case "objects":
		props, err := c.fields(path, v)
		if err != nil {
			return nil, err
		}
		distinct, _, err := optionalBool(path, v, "distinct")
		if err != nil {
			return nil, err
		}
		return schema.NewObjectArray(title, description, schema.NewObject(title, description, props...), distinct), nil

	case "map":
		props, err := c.fields(path, v)
		if err != nil {
			return nil, err
		}
		keyName, key, err := c.key(path, v)
		if err != nil {
			return nil, err
		}
		return schema.NewObjectMap(title, description, keyName, key, schema.NewObject(title, description, props...)), nil

	case "localized":
		return schema.NewLocalizedString(title, description, c.opts.Locales), nil

	case "applications":
		keyName, key, err := c.key(path, v)
		if err != nil {
			return nil, err
		}
		if _, ok := key.(*schema.String); !ok {
			return nil, &CompileError{Field: path + ".key", Message: "applications must be keyed by a string", Pos: v.Pos()}
		}
		return Applications(title, description, keyName, key, c.opts.Applications), nil

	default:
		return nil, &CompileError{
			Field:   path + ".kind",
			Message: fmt.Sprintf("unsupported field kind %q", kind),
			Pos:     v.Pos(),
		}
	}
}

func (c *compiler) integer(path string, v cue.Value, title, description string) (schema.Node, error) {
	def, _, err := optionalInt(path, v, "default")
	if err != nil {
		return nil, err
	}
	var opts []schema.IntegerOption
	if unbounded, _, err := optionalBool(path, v, "unbounded"); err != nil {
		return nil, err
	} else if unbounded {
		opts = append(opts, schema.Unbounded())
	}
	if minimum, ok, err := optionalInt(path, v, "minimum"); err != nil {
		return nil, err
	} else if ok {
		opts = append(opts, schema.WithMinimum(minimum))
	}
	if maximum, ok, err := optionalInt(path, v, "maximum"); err != nil {
		return nil, err
	} else if ok {
		opts = append(opts, schema.WithMaximum(maximum))
	}
	node := schema.NewInteger(title, description, def, opts...)
	if _, err := node.Default(); err != nil {
		return nil, &CompileError{Field: path + ".default", Message: err.Error(), Pos: v.Pos()}
	}
	return node, nil
}

func (c *compiler) enum(path string, v cue.Value, title, description string) (*schema.Enum, error) {
	entries, err := c.entries(path, v)
	if err != nil {
		return nil, err
	}
	var opts []schema.EnumOption
	if v.LookupPath(cue.ParsePath("default")).IncompleteKind() == cue.StringKind {
		def, _, err := optionalString(path, v, "default")
		if err != nil {
			return nil, err
		}
		opts = append(opts, schema.EnumDefault(def))
	}
	enum, err := schema.NewEnum(title, description, entries, opts...)
	if err != nil {
		return nil, &CompileError{Field: path, Message: err.Error(), Pos: v.Pos()}
	}
	return enum, nil
}

func (c *compiler) entries(path string, v cue.Value) ([]schema.EnumEntry, error) {
	values := v.LookupPath(cue.ParsePath("values"))
	if !values.Exists() {
		return nil, &CompileError{Field: path + ".values", Message: "values are required", Pos: v.Pos()}
	}
	iter, err := values.List()
	if err != nil {
		return nil, formatCUEError(path+".values", err)
	}
	var entries []schema.EnumEntry
	for iter.Next() {
		ev := iter.Value()
		name, err := requiredString(path+".values", ev, "name")
		if err != nil {
			return nil, err
		}
		label, _, err := optionalString(path+".values", ev, "label")
		if err != nil {
			return nil, err
		}
		entries = append(entries, schema.EnumEntry{Name: name, Label: label})
	}
	return entries, nil
}

// fields compiles the nested "fields" struct in declaration order.
func (c *compiler) fields(path string, v cue.Value) ([]schema.Property, error) {
	fv := v.LookupPath(cue.ParsePath("fields"))
	if !fv.Exists() {
		return nil, nil
	}
	iter, err := fv.Fields()
	if err != nil {
		return nil, formatCUEError(path+".fields", err)
	}
	var props []schema.Property
	for iter.Next() {
		name := iter.Label()
		node, err := c.field(path+"."+name, iter.Value())
		if err != nil {
			return nil, err
		}
		props = append(props, schema.P(name, node))
	}
	return props, nil
}

// key compiles the key property of a map. A key with values is an enum.
func (c *compiler) key(path string, v cue.Value) (string, schema.Node, error) {
	kv := v.LookupPath(cue.ParsePath("key"))
	if !kv.Exists() {
		return "", nil, &CompileError{Field: path + ".key", Message: "key is required", Pos: v.Pos()}
	}
	kpath := path + ".key"
	name, err := requiredString(kpath, kv, "name")
	if err != nil {
		return "", nil, err
	}
	title, err := requiredString(kpath, kv, "title")
	if err != nil {
		return "", nil, err
	}
	description, _, err := optionalString(kpath, kv, "description")
	if err != nil {
		return "", nil, err
	}
	if kv.LookupPath(cue.ParsePath("values")).Exists() {
		enum, err := c.enum(kpath, kv, title, description)
		if err != nil {
			return "", nil, err
		}
		return name, enum, nil
	}
	return name, schema.NewString(title, description, ""), nil
}

func requiredString(path string, v cue.Value, name string) (string, error) {
	s, ok, err := optionalString(path, v, name)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", &CompileError{Field: path + "." + name, Message: name + " is required", Pos: v.Pos()}
	}
	return s, nil
}

func optionalString(path string, v cue.Value, name string) (string, bool, error) {
	f := v.LookupPath(cue.ParsePath(name))
	if !f.Exists() {
		return "", false, nil
	}
	s, err := f.String()
	if err != nil {
		return "", true, formatCUEError(path+"."+name, err)
	}
	return s, true, nil
}

func optionalBool(path string, v cue.Value, name string) (bool, bool, error) {
	f := v.LookupPath(cue.ParsePath(name))
	if !f.Exists() {
		return false, false, nil
	}
	b, err := f.Bool()
	if err != nil {
		return false, true, formatCUEError(path+"."+name, err)
	}
	return b, true, nil
}

func optionalInt(path string, v cue.Value, name string) (int64, bool, error) {
	f := v.LookupPath(cue.ParsePath(name))
	if !f.Exists() {
		return 0, false, nil
	}
	n, err := f.Int64()
	if err != nil {
		return 0, true, formatCUEError(path+"."+name, err)
	}
	return n, true, nil
}

func optionalStrings(path string, v cue.Value, name string) ([]string, error) {
	f := v.LookupPath(cue.ParsePath(name))
	if !f.Exists() {
		return nil, nil
	}
	iter, err := f.List()
	if err != nil {
		return nil, formatCUEError(path+"."+name, err)
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(path+"."+name, err)
		}
		out = append(out, s)
	}
	return out, nil
}
