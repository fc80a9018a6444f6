package runner

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v3"

	"github.com/merfantz/runnerd/internal/core"
	"github.com/merfantz/runnerd/internal/fsutil"
)

// classPattern matches Python class definitions in a runner template.
var classPattern = regexp.MustCompile(`class\s+(\w+)(?:\([^)]*\))?:`)

// servePortPattern matches an existing uvicorn serve call so its port
// can be rewritten in place.
var servePortPattern = regexp.MustCompile(`uvicorn\.run\(app,\s*host="[^"]*",\s*port=\d+\)`)

// EndpointInjector renders a runner template into a self-contained
// executable artifact that binds an HTTP listener to the given port.
// The rendered file and its sidecar manifest live in a fresh scratch
// directory owned by exactly one process record.
type EndpointInjector struct {
	// ClassMarker selects the entry-point class: the first class whose
	// name contains the marker wins, falling back to the first class in
	// the file.
	ClassMarker string
}

// NewEndpointInjector creates an injector with the default entry-point
// class marker.
func NewEndpointInjector(classMarker string) *EndpointInjector {
	if classMarker == "" {
		classMarker = "Crew"
	}
	return &EndpointInjector{ClassMarker: classMarker}
}

// Manifest is the sidecar written next to each rendered artifact so an
// operator inspecting a scratch directory can tell what it belongs to.
type Manifest struct {
	Template   string    `yaml:"template"`
	Port       int       `yaml:"port"`
	EntryClass string    `yaml:"entry_class"`
	RenderedAt time.Time `yaml:"rendered_at"`
}

// ManifestName is the sidecar file name inside a scratch directory.
const ManifestName = "runner.yaml"

// Inject implements core.Injector. It reads the template, locates the
// entry-point class, injects (or re-ports) the HTTP serve block, and
// writes the result into a new scratch directory.
func (i *EndpointInjector) Inject(templatePath string, port int) (string, error) {
	raw, err := fsutil.ReadFileScoped(templatePath)
	if err != nil {
		return "", core.ErrInjection(fmt.Sprintf("reading template %s", templatePath)).WithCause(err)
	}
	content := string(raw)

	entryClass := i.entryClassName(content)
	if entryClass == "" {
		return "", core.ErrInjection(
			fmt.Sprintf("no entry-point class found in %s", templatePath))
	}

	if hasServeBlock(content) {
		// Template already serves HTTP, just rebind the port.
		content = servePortPattern.ReplaceAllString(content,
			fmt.Sprintf(`uvicorn.run(app, host="0.0.0.0", port=%d)`, port))
	} else {
		content += "\n" + renderEndpointBlock(entryClass, port)
	}

	scratchDir, err := os.MkdirTemp("", "runner-")
	if err != nil {
		return "", core.ErrInjection("creating scratch directory").WithCause(err)
	}

	renderedPath := filepath.Join(scratchDir, fmt.Sprintf("runner_%d.py", port))
	if err := renameio.WriteFile(renderedPath, []byte(content), 0o600); err != nil {
		_ = os.RemoveAll(scratchDir)
		return "", core.ErrInjection("writing rendered artifact").WithCause(err)
	}

	manifest := Manifest{
		Template:   templatePath,
		Port:       port,
		EntryClass: entryClass,
		RenderedAt: time.Now().UTC(),
	}
	if err := writeManifest(scratchDir, manifest); err != nil {
		_ = os.RemoveAll(scratchDir)
		return "", core.ErrInjection("writing scratch manifest").WithCause(err)
	}

	return renderedPath, nil
}

// entryClassName extracts the entry-point class from the template:
// the first class containing the marker, else the first class.
func (i *EndpointInjector) entryClassName(content string) string {
	matches := classPattern.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return ""
	}
	for _, m := range matches {
		if strings.Contains(m[1], i.ClassMarker) {
			return m[1]
		}
	}
	return matches[0][1]
}

func hasServeBlock(content string) bool {
	return strings.Contains(content, `if __name__ == "__main__"`) &&
		strings.Contains(content, "uvicorn.run")
}

func writeManifest(dir string, m Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return err
	}
	return renameio.WriteFile(filepath.Join(dir, ManifestName), data, 0o600)
}

// LoadManifest reads the sidecar manifest from a scratch directory.
func LoadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestName))
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// renderEndpointBlock produces the HTTP serve block appended to
// templates that don't already carry one.
func renderEndpointBlock(entryClass string, port int) string {
	return fmt.Sprintf(`
crew_instance = %[1]s()

@app.post("/ask")
async def ask(request: Request):
    data = await request.json()
    user_input = data.get("query")
    if not user_input:
        return {"error": "query is required"}

    print(f"Received query: {user_input}")

    session_id = data.get("session_id", "default")

    with mlflow.start_run(run_name=f"support_request_{session_id}"):
        mlflow.log_param("user_message", user_input)
        mlflow.log_param("session_id", session_id)
        mlflow.log_param("endpoint", "/analyze")

        result = crew_instance.crew().kickoff(inputs={"user_message": user_input})

        if hasattr(result, 'raw'):
            final_output = result.raw
        elif hasattr(result, 'output'):
            final_output = result.output
        else:
            final_output = str(result)

        mlflow.log_text(final_output, "crew_output.txt")
        mlflow.log_metric("success", 1)
        mlflow.set_tag("status", "success")
        mlflow.set_tag("user_id", "demo_user_01")

        return {"result": final_output}

if __name__ == "__main__":
    uvicorn.run(app, host="0.0.0.0", port=%[2]d)
`, entryClass, port)
}
