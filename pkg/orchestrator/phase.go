// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package orchestrator

// Phase is a state of the run state machine:
//
//	Idle -> TemplateEnsured -> InputsUploaded -> UploadReady -> Launched
//	     -> ExecutionReady | TimedOut -> OutputsRetrieved -> Done
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseTemplateEnsured
	PhaseInputsUploaded
	PhaseUploadReady
	PhaseLaunched
	PhaseExecutionReady
	PhaseTimedOut
	PhaseOutputsRetrieved
	PhaseDone
)

var phaseNames = map[Phase]string{
	PhaseIdle:             "idle",
	PhaseTemplateEnsured:  "template_ensured",
	PhaseInputsUploaded:   "inputs_uploaded",
	PhaseUploadReady:      "upload_ready",
	PhaseLaunched:         "launched",
	PhaseExecutionReady:   "execution_ready",
	PhaseTimedOut:         "timed_out",
	PhaseOutputsRetrieved: "outputs_retrieved",
	PhaseDone:             "done",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return "unknown"
}
