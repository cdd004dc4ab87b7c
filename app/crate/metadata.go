package crate

import (
	"encoding/json"
	"strings"
)

const rootID = "./"

// Metadata renders the manifest as a minimal Workflow Testing RO-Crate document.
func (m *Manifest) Metadata() ([]byte, error) {
	var g []map[string]interface{}
	ref := func(id string) map[string]interface{} {
		return map[string]interface{}{"@id": id}
	}

	mentions := make([]interface{}, 0, len(m.TestSuites))
	for _, s := range m.TestSuites {
		mentions = append(mentions, ref(s.ID))
	}
	hasPart := []interface{}{ref(m.MainWorkflow.ID)}
	if m.TestDir != "" {
		hasPart = append(hasPart, ref(m.TestDir))
	}

	root := map[string]interface{}{
		"@id":        rootID,
		"@type":      "Dataset",
		"mainEntity": ref(m.MainWorkflow.ID),
		"hasPart":    hasPart,
		"mentions":   mentions,
	}
	if m.RootName != "" {
		root["name"] = m.RootName
	}
	g = append(g, map[string]interface{}{
		"@id":        MetadataFile,
		"@type":      "CreativeWork",
		"conformsTo": ref(crateProfilePrefix + "1.1"),
		"about":      ref(rootID),
	}, root)

	wf := map[string]interface{}{
		"@id":   m.MainWorkflow.ID,
		"@type": workflowTypes,
	}
	if m.MainWorkflow.Name != "" {
		wf["name"] = m.MainWorkflow.Name
	}
	if m.MainWorkflow.Version != "" {
		wf["version"] = m.MainWorkflow.Version
	}
	g = append(g, wf)
	if m.MainWorkflow.Type != "" && m.MainWorkflow.Type != "other" {
		lang := workflowLangPrefix + m.MainWorkflow.Type
		wf["programmingLanguage"] = ref(lang)
		g = append(g, map[string]interface{}{
			"@id":   lang,
			"@type": "ComputerLanguage",
			"name":  m.MainWorkflow.Type,
		})
	}
	if m.TestDir != "" {
		g = append(g, map[string]interface{}{"@id": m.TestDir, "@type": "Dataset"})
	}

	services := map[string]bool{}
	for _, s := range m.TestSuites {
		suite := map[string]interface{}{
			"@id":        s.ID,
			"@type":      "TestSuite",
			"mainEntity": ref(m.MainWorkflow.ID),
		}
		if s.Name != "" {
			suite["name"] = s.Name
		}
		instances := make([]interface{}, 0, len(s.Instances))
		for _, i := range s.Instances {
			instances = append(instances, ref(i.ID))
		}
		suite["instance"] = instances
		g = append(g, suite)

		for _, i := range s.Instances {
			serviceID := serviceID(i.Service.Type)
			instance := map[string]interface{}{
				"@id":      i.ID,
				"@type":    "TestInstance",
				"runsOn":   ref(serviceID),
				"url":      i.Service.URL,
				"resource": i.Service.Resource,
			}
			if i.Name != "" {
				instance["name"] = i.Name
			}
			if len(i.Parameters) > 0 {
				instance["parameters"] = i.Parameters
			}
			g = append(g, instance)
			if !services[serviceID] {
				services[serviceID] = true
				g = append(g, map[string]interface{}{"@id": serviceID, "@type": "TestService", "name": i.Service.Type})
			}
		}

		if d := s.Definition; d != nil {
			suite["definition"] = ref(d.ID)
			def := map[string]interface{}{
				"@id":        d.ID,
				"@type":      []string{"File", "TestDefinition"},
				"conformsTo": ref(testTermsPrefix + capitalize(d.Engine) + "Engine"),
			}
			if d.EngineVersion != "" {
				def["engineVersion"] = d.EngineVersion
			}
			g = append(g, def)
		}
	}

	return json.MarshalIndent(map[string]interface{}{
		"@context": "https://w3id.org/ro/crate/1.1/context",
		"@graph":   g,
	}, "", "    ")
}

func serviceID(kind string) string {
	for id, k := range serviceTypes {
		if k == kind {
			return id
		}
	}
	return testTermsPrefix + capitalize(kind) + "Service"
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
