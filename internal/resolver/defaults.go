package resolver

// DefaultSpecs is the built-in artifact catalog: the fixed declarative table
// of inventory datasets and how each derives its call parameters. Passing
// expandMembers includes the per-queue membership expansion, which multiplies
// call volume by the queue count.
func DefaultSpecs(expandMembers bool) []ArtifactSpec {
	specs := []ArtifactSpec{
		{Module: "locations", MethodPath: "locations.list"},
		{Module: "people", MethodPath: "people.list", StaticArgs: map[string]any{"max": 1000}},
		{Module: "licenses", MethodPath: "licenses.list"},
		{Module: "groups", MethodPath: "groups.list"},
		{Module: "workspaces", MethodPath: "workspaces.list"},
		{Module: "virtual_lines", MethodPath: "telephony.virtuallines.list"},
		{
			Module:     "queues",
			MethodPath: "telephony.queues.list",
			ParamSources: []ParamSource{
				{Name: "locationId", Module: "locations", Field: "id"},
			},
		},
		{
			Module:     "auto_attendants",
			MethodPath: "telephony.autoattendants.list",
			ParamSources: []ParamSource{
				{Name: "locationId", Module: "locations", Field: "id"},
			},
		},
	}
	if expandMembers {
		specs = append(specs, ArtifactSpec{
			Module:     "queue_members",
			MethodPath: "telephony.queues.members.list",
			ParamSources: []ParamSource{
				{Name: "queueId", Module: "queues", Field: "id", RequiredField: "name"},
			},
		})
	}
	return specs
}
