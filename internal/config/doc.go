// Package config handles configuration loading for supportdesk.
//
// # Configuration File
//
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Values may reference environment variables with ${VAR_NAME}; unset
// variables expand to the empty string.
//
//	server:
//	  http_addr: ":8080"
//	  shutdown_timeout: "10s"
//	  allowed_origins: ["https://desk.example.com"]
//
//	database:
//	  url: "${DATABASE_URL}"   # empty runs on the in-memory store
//	  max_conns: 10
//	  auto_migrate: true
//
//	auth:
//	  jwt_secret: "${SUPPORTDESK_JWT_SECRET}"   # at least 32 bytes
//	  issuer: "supportdesk"
//	  token_ttl: "1h"
//
//	model:
//	  provider: "openai"      # openai, anthropic
//	  name: "gpt-4o-mini"
//	  api_key: "${OPENAI_API_KEY}"
//
//	agent:
//	  max_steps: 12
//	  history_window: 40
//	  search_limit: 5
//	  currency: "USD"
//	  instruction_file: ""    # optional prompt template
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// Duration values use time.ParseDuration syntax.
//
// # Usage
//
//	cfg, err := config.Load("supportdesk.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
