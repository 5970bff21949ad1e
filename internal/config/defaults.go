package config

// DefaultConfigYAML contains the starter configuration written by
// `codecouncil init`. Values omitted here fall back to built-in defaults.
const DefaultConfigYAML = `# CodeCouncil configuration
#
# Values not specified here use sensible defaults.

# Upstream LLM endpoint
upstream:
  provider: anthropic
  model: claude-sonnet-4-20250514
  api_key_env: ANTHROPIC_API_KEY
  max_tokens: 4096
  temperature: 0.3
  timeout: 120s

# Call resilience
gateway:
  retry:
    max_attempts: 3
    base_delay: 1s
    max_delay: 30s
  breaker:
    failure_threshold: 5
    success_threshold: 2
    cooldown: 60s

# Response cache (fingerprinted by agent, model, content, objective)
cache:
  enabled: true
  ttl: 1h
  sliding: false
  max_entries: 1000

# Per-agent request throttling
ratelimit:
  max_requests: 30
  window: 1m
  mode: block

# Batch construction
scheduler:
  batch_size: 10
  max_tokens_per_batch: 12000

# Specialist roster. Add custom personas via roster_file.
agents:
  enabled: [security, performance, architecture]
  roster_file: ""

# Agent discussion round
review:
  peer_review_enabled: true
  synthesis_enabled: false

# Output
report:
  format: terminal
  output_dir: .codecouncil/reports

# Run history
store:
  path: .codecouncil/history.db
  max_runs: 100
`
