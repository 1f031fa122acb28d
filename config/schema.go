package config

import (
	"encoding/json"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

const schemaFilename = "viewstate/schema.cue"

const schemaSource = `
#Config: {
    name?:            string
    description?:     string
    logging?:         #Logging
    telemetry?:       #Telemetry
    hot_reload?:      bool
    reload_interval?: string
    sources?: mqtt?:  #MQTT
    modules?: [...(string | #Module)]
    rules?: [...#Rule]
}

#Logging: {
    level?:  "trace" | "debug" | "info" | "warn" | "error" | "fatal" | "panic" | "disabled" | ""
    format?: "json" | "text" | ""
    loki?: {
        enabled?: bool
        url?:     string
        labels?: [string]: string
    }
}

#Telemetry: {
    enabled?:  bool
    provider?: string
}

#MQTT: {
    enabled?:         bool
    broker?:          string
    client_id?:       string
    topics?: [...string]
    qos?:             0 | 1 | 2
    clean_session?:   bool
    keep_alive?:      string
    connect_timeout?: string
    type_from_topic?: bool
    auth?: {
        username: string
        password: string
    }
    tls?: {
        enabled?:              bool
        insecure_skip_verify?: bool
        ca_file?:              string
        cert_file?:            string
        key_file?:             string
        server_name?:          string
    }
}

#Module: {
    path:         string & !=""
    name?:        string
    description?: string
}

#Rule: {
    start:          string & !=""
    reset?:         [...string]
    error?:         [...string]
    error_payload?: string
    description?:   string
}
`

func configSchema(ctx *cue.Context) (cue.Value, error) {
	compiled := ctx.CompileString(schemaSource, cue.Filename(schemaFilename))
	if err := compiled.Err(); err != nil {
		return cue.Value{}, fmt.Errorf("compile config schema: %w", err)
	}
	def := compiled.LookupPath(cue.ParsePath("#Config"))
	if err := def.Err(); err != nil {
		return cue.Value{}, fmt.Errorf("lookup config schema: %w", err)
	}
	return def, nil
}

// decodeCUE compiles a CUE configuration, unifies it with the #Config schema
// and decodes the concrete result.
func decodeCUE(path string, raw []byte, cfg *Config) error {
	ctx := cuecontext.New()
	schema, err := configSchema(ctx)
	if err != nil {
		return err
	}
	value := ctx.CompileBytes(raw, cue.Filename(path))
	if err := value.Err(); err != nil {
		return fmt.Errorf("compile config %s: %w", path, err)
	}
	unified := schema.Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("validate config %s: %w", path, err)
	}
	data, err := unified.MarshalJSON()
	if err != nil {
		return fmt.Errorf("export config %s: %w", path, err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}
	return nil
}
