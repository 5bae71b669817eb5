package schema

// MaintenanceRegistry returns the schema used for CMMS intervention reports:
// machines, their components, observed failures, root causes, and the
// technicians and corrective actions involved. Labels and relationship types
// are French, matching the source reports.
func MaintenanceRegistry() (*Registry, error) {
	nodeTypes := []NodeTypeSpec{
		{
			Label:       "Technicien",
			Description: "Le nom ou le visa d'un technicien",
			Properties:  []Property{{Name: "name", Type: PropertyTypeString}},
		},
		{
			Label:       "Action",
			Description: "Une activité déployée par une personne ou un service pour résoudre une panne",
			Properties: []Property{
				{Name: "name", Type: PropertyTypeString},
				{Name: "date", Type: PropertyTypeDate},
			},
		},
		{
			Label:       "Panne",
			Description: "Une panne ou un problème constaté sur une machine",
			Properties: []Property{
				{Name: "name", Type: PropertyTypeString},
				{Name: "Durée", Type: PropertyTypeString},
				{Name: "Identifiant", Type: PropertyTypeString},
			},
		},
		{
			Label:       "Machine",
			Description: "Un équipement de production",
			Properties:  []Property{{Name: "name", Type: PropertyTypeString}},
		},
		{
			Label:       "Composant",
			Description: "Une pièce ou une partie d'une machine",
			Properties: []Property{
				{Name: "name", Type: PropertyTypeString},
				{Name: "Référence", Type: PropertyTypeString},
			},
		},
		{
			Label:       "Cause",
			Description: "La cause ou root-cause ayant provoquée une panne",
			Properties:  []Property{{Name: "name", Type: PropertyTypeString}},
		},
	}

	relationships := []string{
		"CONTIENT",
		"PROVOQUE",
		"REALISE",
		"INTERVIENT_SUR",
		"DIAGNOSTIQUE",
		"AFFECTE",
		"IMPLIQUE",
		"CONTRIBUE_A",
		"DEGRADE",
	}

	return NewRegistry(nodeTypes, relationships)
}

// MedicalRegistry returns the schema used for medical-literature corpora
// (adverse drug effects, conditions, treatments).
func MedicalRegistry() (*Registry, error) {
	labels := []string{
		"Drug", "Trigger", "Patient", "Condition", "Gender", "Age",
		"Organization", "Place", "Disease", "Symptom", "Effect",
		"Disorder", "Treatment", "Route",
	}

	nodeTypes := make([]NodeTypeSpec, 0, len(labels))
	for _, label := range labels {
		nodeTypes = append(nodeTypes, NodeTypeSpec{
			Label:      label,
			Properties: []Property{{Name: "name", Type: PropertyTypeString}},
		})
	}

	relationships := []string{
		"TRIGGERS",
		"HAS_EFFECT",
		"TREATS",
		"ADMINISTERS",
		"HAS_ATTRIBUTE",
		"CAUSES",
		"ADMINISTERED_TO",
		"ADMINISTERED_VIA",
		"COMBINED_WITH",
		"AFFECTS",
		"ASSOCIATED_WITH",
		"CONTRIBUTES_TO",
		"HAS_REACTION",
		"INTERACTS_WITH",
		"RESULTS_IN",
	}

	return NewRegistry(nodeTypes, relationships)
}
