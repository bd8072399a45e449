// Package config loads chatsync configuration and resolves its paths.
//
// Sources are applied in order, later ones winning:
//
//  1. Built-in defaults
//  2. Global config in $XDG_CONFIG_HOME/chatsync (chatsync.json, chatsync.jsonc, chatsync.yaml)
//  3. Project config in the working directory (same file names)
//  4. The file named by CHATSYNC_CONFIG
//  5. Environment variables, after loading .env from the working directory
//
// JSON files may contain comments (tidwall/jsonc). Every file supports
// {env:VAR} and {file:path} placeholders.
//
//	{
//	  "provider": "groq",
//	  "model": "llama-3.1-8b-instant",
//	  "providers": {
//	    "groq": { "apiKey": "{env:GROQ_API_KEY}" }
//	  },
//	  "storage": { "driver": "sqlite" },
//	  "audio": { "enabled": true }
//	}
package config
