// Package config loads the test proxy's configuration file.
//
// The file is YAML (.yaml, .yml) or JSON (anything else):
//
//	listen: ":5000"
//	rootDir: ./recordings
//	log:
//	  level: info
//	  format: text
//	consumption: sequential
//	matcher:
//	  type: CustomDefaultMatcher
//	  excludedHeaders: [X-Request-Nonce]
//	sanitizers:
//	  - type: HeaderRegexSanitizer
//	    key: X-Api-Secret
//	transforms:
//	  - type: ApiVersionTransform
//	preload:
//	  dir: ./fixtures
//	  pattern: "**/*.json"
//
// Sanitizers, transforms and the matcher are registered as process-wide
// defaults on top of the built-in ones.
package config
