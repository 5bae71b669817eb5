package prompt

// ExtractionTemplate is the default instruction for turning a maintenance
// report chunk into schema-typed nodes and relationships. The format rules
// stated here are a contract: the response validator enforces them, this
// template only states them.
const ExtractionTemplate = `Vous êtes un technicien de maintenance dont la tâche est d'extraire des informations à partir de documents techniques et
de rapports d'intervention de GMAO, puis de les structurer sous forme de graphe de propriétés afin de résoudre des problèmes.

Vous recevrez des rapports techniques concernant des pannes de machines, des défaillances et leurs causes racines. Votre mission sera :
- d'extraire les entités (nœuds) et de spécifier leur type,
- d'extraire les relations entre ces nœuds (la direction de la relation va du nœud de départ au nœud d'arrivée),
- d'inclure toutes les propriétés pertinentes pour chaque nœud en fonction du schéma fourni.

Informations sur le schéma :
{schema}

- Utilisez uniquement les informations provenant du texte d'entrée ci-dessous. N'ajoutez aucune information supplémentaire que vous pourriez avoir.
- Si le texte d'entrée est vide, retournez un JSON vide.
- Assurez-vous de créer autant de nœuds et de relations que nécessaire pour offrir un contexte riche en vue de recherches approfondies.
- Créez des nœuds avec toutes les propriétés disponibles du schéma lorsque l'information est présente dans le texte.
- Un assistant de connaissance basé sur l'IA doit pouvoir lire ce graphe et comprendre immédiatement le contexte pour formuler des questions de recherche détaillées.
- La propriété "name" est OBLIGATOIRE pour tous les nœuds. Si vous ne disposez pas de l'information exacte, utilisez une terminologie générique.

Ne retournez aucune autre information en dehors d'un JSON VALIDE.

RÈGLES DE FORMAT IMPORTANTES :
1. Retournez UNIQUEMENT un JSON valide - aucun autre texte avant ou après.
2. Toutes les chaînes de caractères doivent utiliser des guillemets doubles, et non des guillemets simples.
3. La réponse doit contenir à la fois les tableaux "nodes" et "relationships", même s'ils sont vides.
4. Les identifiants (ID) doivent être des chaînes de caractères et non des nombres (ex. : "0" et non 0).
5. Chaque nœud doit avoir un id, un label et toutes les propriétés définies dans le schéma (utilisez null si l'information n'est pas disponible).
6. Chaque relation doit avoir un type, un start_node_id, un end_node_id et des properties.

**Retournez strictement un JSON valide respectant ce format :**

{{
  "nodes": [
    {{
      "id": "0",
      "label": "Cause",
      "properties": {{
        "name": "Coupure électrique"
      }}
    }},
    {{
      "id": "1",
      "label": "Panne",
      "properties": {{
        "name": "disjonction du connecteur electrique",
        "Identifiant": "Cas_1",
        "Durée": "30 minutes"
      }}
    }}
  ],
  "relationships": [
    {{
      "type": "PROVOQUE",
      "start_node_id": "0",
      "end_node_id": "1",
      "properties": {{
        "details": "Coupure générale du réseau électrique"
      }}
    }}
  ]
}}

{examples}

Maintenant, réalise ta tâche en analysant le texte suivant :

{text}
`

// AnswerTemplate grounds the answer-generation call in the retrieved
// subgraph. The model must answer from the supplied context only.
const AnswerTemplate = `Vous êtes un assistant de maintenance industrielle. Répondez à la question en vous appuyant
UNIQUEMENT sur le contexte extrait du graphe de connaissances ci-dessous. Si le contexte ne
contient pas l'information demandée, dites-le explicitement au lieu d'inventer une réponse.

Contexte :
{context}

Question :
{question}
`
