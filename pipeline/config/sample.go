// Copyright 2026 The pktpipe Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

const metadataSample = `
# Size of the per-packet metadata scratch area in bytes. (default 96)
total_size = 96

# Largest size of a single attribute in bytes. (default 32)
max_attr_size = 32

# Maximum number of attributes a module may declare. (default 16)
max_attrs_per_module = 16
`

const pipelineSample = `
# Number of packets a source puts in a batch, at most 32. (default 32)
batch_size = 32

# Feature flags. (strict_metadata|xxhash_tables) (default [])
features = []

# Interval at which lookup table statistics are exported. (default 10s)
stats_interval = "10s"
`

const graphSample = `
# Modules are created in order of appearance. The arguments depend on the
# class, see "pktpipe classes".
[[modules]]
name = "src"
class = "Source"
args = { file = "capture.pcap", loop = 1 }

[[modules]]
name = "ts"
class = "Timestamp"

[[modules]]
name = "mark"
class = "SetMetadata"

[[modules.args.attrs]]
name = "vlan"
size = 2
value = 10

[[modules]]
name = "fwd"
class = "ExactMatch"

[modules.args]
default_gate = 0

[[modules.args.fields]]
attr = "vlan"
size = 2

[[modules.args.fields]]
offset = 0
size = 6

[[modules.args.entries]]
key = "0a00020000000001"
gate = 1

[[modules]]
name = "latency"
class = "Measure"

[[modules]]
name = "out"
class = "Sink"

[[modules]]
name = "mirror"
class = "Sink"

# Links connect an output gate to an input gate of another module.
[[links]]
from = "src"
ogate = 0
to = "ts"
igate = 0

[[links]]
from = "ts"
ogate = 0
to = "mark"
igate = 0

[[links]]
from = "mark"
ogate = 0
to = "fwd"
igate = 0

[[links]]
from = "fwd"
ogate = 0
to = "latency"
igate = 0

[[links]]
from = "latency"
ogate = 0
to = "out"
igate = 0

[[links]]
from = "fwd"
ogate = 1
to = "mirror"
igate = 0
`
