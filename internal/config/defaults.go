package config

// DefaultConfigYAML contains the default configuration YAML content.
// Written by `runnerd init` so operators have a commented starting point.
const DefaultConfigYAML = `# runnerd configuration
#
# Values not specified here use sensible defaults.

log:
  level: info      # debug, info, warn, error
  format: auto     # auto, text, json

# HTTP control plane
server:
  host: localhost
  port: 8080
  enable_cors: true

# Runner launch and termination
runner:
  # Candidate TCP ports for launched runners, inclusive
  port_range_start: 9001
  port_range_end: 9010
  # Interpreter used to execute rendered runner artifacts
  interpreter: python3
  # A live runner's process name must contain this before it is signaled
  process_name: python
  # Wait after the graceful signal before escalating to a kill
  grace_period: 3s
  # Working directory for spawned runners
  base_dir: .
  # Template entry-point classes are matched against this marker
  entry_class_marker: Crew

# Process registry persistence
state:
  path: .runnerd/registry.db

# Periodic sweep reconciling the registry against live processes
reconcile:
  enabled: true
  schedule: "@every 1m"
`
