// Package config loads typed configuration structs from environment
// variables (github.com/caarlos0/env) with optional dotenv files
// (github.com/joho/godotenv).
//
// Every component of subledger declares its own Config struct with env and
// envDefault tags; cmd/subledger loads each of them through Load, which
// parses a given type only once per process.
package config
